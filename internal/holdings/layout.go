package holdings

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

// Field is a logical column of the holdings table.
type Field string

const (
	FieldCode     Field = "code"
	FieldName     Field = "name"
	FieldAccount  Field = "account"
	FieldQuantity Field = "quantity"
	FieldAvgCost  Field = "avg_cost"
	FieldPrice    Field = "current_price"
	FieldValue    Field = "market_value"
	FieldPL       Field = "unrealized_pl"
	FieldPLPct    Field = "unrealized_pct"
)

// Header labels seen across export versions, lower-cased without spaces.
// The longest label contained in a cell decides its field.
var headerLabels = map[Field][]string{
	FieldCode:     {"銘柄コード", "証券コード", "コード", "code", "ticker", "symbol"},
	FieldName:     {"銘柄名", "銘柄・ファンド名", "銘柄", "name", "security"},
	FieldAccount:  {"口座区分", "口座種別", "口座", "account"},
	FieldQuantity: {"保有株数", "保有数量", "保有口数", "数量", "株数", "quantity", "shares", "qty"},
	FieldAvgCost:  {"平均取得単価", "平均取得価額", "平均取得価格", "取得単価", "取得価格", "averagecost", "avgcost", "cost"},
	FieldPrice:    {"現在値", "株価", "currentprice", "price"},
	FieldValue:    {"時価評価額", "評価額", "marketvalue"},
	FieldPL:       {"評価損益額", "評価損益", "損益額", "unrealizedp/l", "gain/loss"},
	FieldPLPct:    {"評価損益率", "損益率", "unrealized%"},
}

// Cell is one text fragment of a row. X is the left edge in PDF user space;
// it is meaningful only when the row is positioned.
type Cell struct {
	Text string
	X    float64
}

// Row is one line of the export.
type Row struct {
	Page       int
	Index      int
	Cells      []Cell
	Positioned bool
}

func (r Row) texts() []string {
	out := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		out = append(out, c.Text)
	}
	return out
}

// Column binds a field to a header cell.
type Column struct {
	Field Field
	Index int
	X     float64
}

// Layout is the column arrangement of the current holdings table.
type Layout struct {
	Columns    []Column
	Positioned bool
}

func (l Layout) has(f Field) bool {
	for _, c := range l.Columns {
		if c.Field == f {
			return true
		}
	}
	return false
}

func squash(s string) string {
	s = strings.ToLower(width.Narrow.String(s))
	return strings.Join(strings.Fields(s), "")
}

func matchHeader(text string) (Field, bool) {
	s := squash(text)
	if s == "" {
		return "", false
	}
	var best Field
	bestLen := 0
	for f, labels := range headerLabels {
		for _, l := range labels {
			n := utf8.RuneCountInString(l)
			if !strings.Contains(s, l) {
				continue
			}
			if n > bestLen || (n == bestLen && f < best) {
				best, bestLen = f, n
			}
		}
	}
	return best, bestLen > 0
}

// detectHeader recognizes a header row. It needs a quantity column, a cost
// column and a code or name column.
func detectHeader(r Row) (Layout, bool) {
	l := Layout{Positioned: r.Positioned}
	for i, c := range r.Cells {
		f, ok := matchHeader(c.Text)
		if !ok || l.has(f) {
			continue
		}
		l.Columns = append(l.Columns, Column{Field: f, Index: i, X: c.X})
	}
	if !l.has(FieldQuantity) || !l.has(FieldAvgCost) {
		return Layout{}, false
	}
	if !l.has(FieldCode) && !l.has(FieldName) {
		return Layout{}, false
	}
	return l, true
}

// bind maps a data row onto the layout, by nearest header X when both are
// positioned and by index otherwise.
func (l Layout) bind(r Row) map[Field]string {
	out := make(map[Field]string, len(l.Columns))
	for i, c := range r.Cells {
		f, ok := l.fieldAt(r, i)
		if !ok {
			continue
		}
		if out[f] != "" {
			out[f] += " "
		}
		out[f] += c.Text
	}
	return out
}

// fieldAt is the field that cell i of r binds to.
func (l Layout) fieldAt(r Row, i int) (Field, bool) {
	if l.Positioned && r.Positioned {
		best := -1
		dist := math.Inf(1)
		for j, col := range l.Columns {
			if d := math.Abs(r.Cells[i].X - col.X); d < dist {
				best, dist = j, d
			}
		}
		if best < 0 {
			return "", false
		}
		return l.Columns[best].Field, true
	}
	for _, col := range l.Columns {
		if col.Index == i {
			return col.Field, true
		}
	}
	return "", false
}

// figures are the columns that hold numbers and never a code.
var figures = map[Field]bool{
	FieldQuantity: true,
	FieldAvgCost:  true,
	FieldPrice:    true,
	FieldValue:    true,
	FieldPL:       true,
	FieldPLPct:    true,
}

var negativeMarks = []string{"▲", "△", "−", "－", "-"}

var numberNoise = strings.NewReplacer(",", "", "円", "", "¥", "", "￥", "", "株", "", "口", "", "%", "", " ", "", "+", "")

// parseNumber reads a broker-formatted number. ▲ and △ mark negatives.
func parseNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(width.Narrow.String(s))
	neg := false
	for _, m := range negativeMarks {
		if strings.HasPrefix(s, m) {
			neg = true
			s = strings.TrimPrefix(s, m)
			break
		}
	}
	s = numberNoise.Replace(s)
	if s == "" || s == "―" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if neg {
		d = d.Neg()
	}
	return d, true
}
