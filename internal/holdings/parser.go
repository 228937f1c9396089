package holdings

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode"

	"DividendSentinel/internal/model"

	"golang.org/x/text/width"
)

var cellSplit = regexp.MustCompile(`\t+|[ 　]{2,}`)

// ParsePlainTable parses holdings already laid out as text lines, with
// columns separated by tabs or runs of spaces.
func ParsePlainTable(lines []string) ([]model.Position, error) {
	rows := make([]Row, 0, len(lines))
	for i, line := range lines {
		rows = append(rows, textRow(1, i+1, line))
	}
	return parseRows(rows, 1)
}

func textRow(page, index int, line string) Row {
	r := Row{Page: page, Index: index}
	for _, part := range cellSplit.Split(strings.TrimSpace(line), -1) {
		if s := strings.TrimSpace(part); s != "" {
			r.Cells = append(r.Cells, Cell{Text: s})
		}
	}
	return r
}

type parser struct {
	layout    *Layout
	account   string
	headers   int
	positions []model.Position
	errs      []error
}

// parseRows walks rows in reading order. A header opens a holdings section
// and rebinds the layout; a title of another asset class closes it.
func parseRows(rows []Row, pages int) ([]model.Position, error) {
	p := &parser{}
	for _, r := range rows {
		p.feed(r)
	}
	if p.headers == 0 {
		return nil, &EmptyHoldingsError{Pages: pages, Reason: "no holdings table header recognized"}
	}
	positions := dedupe(p.positions)
	log.Printf("[INFO] holdings: %d positions, %d rejected rows, %d header rows", len(positions), len(p.errs), p.headers)
	if len(p.errs) > 0 {
		return positions, errors.Join(p.errs...)
	}
	return positions, nil
}

func (p *parser) feed(r Row) {
	cells := nonBlank(r.texts())
	if len(cells) == 0 {
		return
	}
	if l, ok := detectHeader(r); ok {
		p.layout = &l
		p.headers++
		return
	}
	if acct, ok := accountLabel(cells); ok {
		p.account = acct
		return
	}
	if p.layout == nil {
		return
	}
	if otherSection(cells) {
		p.layout = nil
		return
	}

	switch ClassifyRow(cells) {
	case RowSubtotal, RowDisclaimer:
		return
	case RowPosition:
		pos, reason := p.position(r)
		if reason != "" {
			p.reject(r, reason)
			return
		}
		p.positions = append(p.positions, pos)
	default:
		if looksLikePosition(cells) {
			p.reject(r, "row does not match the holdings layout")
		}
	}
}

func nonBlank(cells []string) []string {
	out := cells[:0:0]
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

func (p *parser) reject(r Row, reason string) {
	p.errs = append(p.errs, &ParseError{Page: r.Page, Row: r.Index, Cells: nonBlank(r.texts()), Reason: reason})
}

// position builds a Position from a bound row. A non-empty reason means the
// row must be surfaced as a ParseError.
func (p *parser) position(r Row) (model.Position, string) {
	f := p.layout.bind(r)

	code := strings.TrimSpace(width.Narrow.String(f[FieldCode]))
	name := strings.TrimSpace(f[FieldName])
	if c, rest, ok := splitLeadingTicker(code); ok {
		code, name = c, strings.TrimSpace(rest+" "+name)
	} else if code == "" {
		// Some exports print "7203 トヨタ自動車" in the name column.
		if c, _, ok := splitLeadingTicker(width.Narrow.String(name)); ok {
			code, name = c, afterFirstField(name)
		}
	}
	if code == "" && !p.layout.has(FieldCode) {
		code = p.unboundCode(r)
	}
	if code == "" {
		return model.Position{}, "ticker missing"
	}
	ticker, ok := model.NormalizeTicker(code)
	if !ok {
		return model.Position{}, fmt.Sprintf("ticker %q is not a TSE code", code)
	}

	qty, ok := parseNumber(f[FieldQuantity])
	if !ok {
		return model.Position{}, fmt.Sprintf("quantity %q is not numeric", f[FieldQuantity])
	}
	if !qty.IsPositive() {
		return model.Position{}, "quantity must be positive"
	}
	cost, ok := parseNumber(f[FieldAvgCost])
	if !ok {
		return model.Position{}, fmt.Sprintf("average cost %q is not numeric", f[FieldAvgCost])
	}
	if cost.IsNegative() {
		return model.Position{}, "average cost is negative"
	}

	account := strings.TrimSpace(width.Narrow.String(f[FieldAccount]))
	if account == "" {
		account = p.account
	}
	pos := model.Position{
		Ticker:   ticker,
		Name:     name,
		Account:  account,
		Quantity: qty,
		AvgCost:  cost,
		Page:     r.Page,
		Row:      r.Index,
	}
	if price, ok := parseNumber(f[FieldPrice]); ok && price.IsPositive() {
		pos.CurrentPrice = price
	}
	return pos, ""
}

func splitLeadingTicker(s string) (code, rest string, ok bool) {
	s = strings.TrimSpace(s)
	m := leadingTicker.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	rest = strings.TrimSpace(strings.TrimPrefix(s, m[1]))
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ".T"))
	return m[1], rest, true
}

func afterFirstField(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return strings.TrimSpace(s[i:])
	}
	return ""
}

// unboundCode looks for a code among the cells that no figure column
// claims. Only used when the layout has no code column.
func (p *parser) unboundCode(r Row) string {
	for i, c := range r.Cells {
		if f, ok := p.layout.fieldAt(r, i); ok && figures[f] {
			continue
		}
		s := strings.TrimSpace(width.Narrow.String(c.Text))
		if tickerShape.MatchString(s) {
			return s
		}
	}
	return ""
}

// dedupe drops exact repeats of a position, as happen when an export
// repeats rows across page breaks. Same ticker in another account is kept.
func dedupe(in []model.Position) []model.Position {
	type key struct{ ticker, account string }
	seen := make(map[key][]model.Position)
	out := make([]model.Position, 0, len(in))
	for _, p := range in {
		k := key{p.Ticker, p.Account}
		dup := false
		for _, prev := range seen[k] {
			if prev.Quantity.Equal(p.Quantity) && prev.AvgCost.Equal(p.AvgCost) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if len(seen[k]) > 0 {
			log.Printf("[WARN] holdings: %s appears twice in account %q with different figures (page %d row %d)", p.Ticker, p.Account, p.Page, p.Row)
		}
		seen[k] = append(seen[k], p)
		out = append(out, p)
	}
	return out
}
