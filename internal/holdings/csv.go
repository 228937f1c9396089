package holdings

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"DividendSentinel/internal/model"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// ParseCSV parses the broker's CSV export. Shift_JIS input, as the Japanese
// brokers still emit, is decoded first.
func ParseCSV(r io.Reader) ([]model.Position, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read holdings csv: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), raw)
		if err != nil {
			return nil, &EmptyHoldingsError{Pages: 1, Reason: "csv is neither UTF-8 nor Shift_JIS", Err: err}
		}
		raw = decoded
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows []Row
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &EmptyHoldingsError{Pages: 1, Reason: "malformed csv", Err: err}
		}
		row := Row{Page: 1, Index: line}
		for _, f := range rec {
			row.Cells = append(row.Cells, Cell{Text: strings.TrimSpace(f)})
		}
		rows = append(rows, row)
	}
	return parseRows(rows, 1)
}
