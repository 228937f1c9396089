package holdings

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"DividendSentinel/internal/model"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/width"
)

const (
	// Estimated advance of a narrow glyph, in points, for merging fragments.
	glyphAdvance = 4.5
	// Fragments further apart than this start a new cell.
	cellGap = 6.0
)

// ParseFile reads a holdings export from disk. PDF is the primary format;
// .csv and .txt exports go through the same classifier.
func ParseFile(path string) ([]model.Position, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read holdings file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ParseCSV(bytes.NewReader(data))
	case ".txt":
		return ParsePlainTable(strings.Split(string(data), "\n"))
	}
	return ParseHoldings(data)
}

// ParseHoldings extracts domestic equity positions from a brokerage
// holdings PDF.
func ParseHoldings(data []byte) ([]model.Position, error) {
	rows, pages, err := readPDF(data)
	if err != nil {
		return nil, &EmptyHoldingsError{Pages: pages, Reason: "unreadable PDF", Err: err}
	}
	return parseRows(rows, pages)
}

func readPDF(data []byte) (rows []Row, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = fmt.Errorf("panic during PDF extraction: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("open PDF: %w", err)
	}
	pages = r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageRows, err := positionedRows(page, i)
		if err != nil || len(pageRows) == 0 {
			pageRows, err = plainRows(page, i)
			if err != nil {
				log.Printf("[WARN] holdings: page %d unreadable: %v", i, err)
				continue
			}
		}
		rows = append(rows, pageRows...)
	}
	return rows, pages, nil
}

// positionedRows groups page text by baseline and splits each line into
// cells at horizontal gaps.
func positionedRows(page pdf.Page, n int) ([]Row, error) {
	textRows, err := page.GetTextByRow()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(textRows, func(i, j int) bool { return textRows[i].Position > textRows[j].Position })

	var out []Row
	for _, tr := range textRows {
		texts := make([]pdf.Text, 0, len(tr.Content))
		for _, t := range tr.Content {
			if strings.TrimSpace(t.S) != "" {
				texts = append(texts, t)
			}
		}
		if len(texts) == 0 {
			continue
		}
		sort.SliceStable(texts, func(i, j int) bool { return texts[i].X < texts[j].X })
		out = append(out, Row{Page: n, Index: len(out) + 1, Cells: mergeFragments(texts), Positioned: true})
	}
	return out, nil
}

func mergeFragments(texts []pdf.Text) []Cell {
	var cells []Cell
	var end float64
	for _, t := range texts {
		w := textWidth(t.S)
		if n := len(cells); n > 0 && t.X-end < cellGap {
			cells[n-1].Text += t.S
			if t.X+w > end {
				end = t.X + w
			}
			continue
		}
		cells = append(cells, Cell{Text: t.S, X: t.X})
		end = t.X + w
	}
	for i := range cells {
		cells[i].Text = strings.TrimSpace(cells[i].Text)
	}
	return cells
}

func textWidth(s string) float64 {
	w := 0.0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			w += 2 * glyphAdvance
		default:
			w += glyphAdvance
		}
	}
	return w
}

func plainRows(page pdf.Page, n int) (rows []Row, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic reading page text: %v", r)
		}
	}()
	text, err := page.GetPlainText(nil)
	if err != nil {
		return nil, err
	}
	for i, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, textRow(n, i+1, line))
	}
	return rows, nil
}
