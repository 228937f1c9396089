package holdings

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// RowKind is the content-based classification of one table row.
type RowKind int

const (
	RowUnknown RowKind = iota
	RowPosition
	RowSubtotal
	RowDisclaimer
)

func (k RowKind) String() string {
	switch k {
	case RowPosition:
		return "position"
	case RowSubtotal:
		return "subtotal"
	case RowDisclaimer:
		return "disclaimer"
	}
	return "unknown"
}

var (
	tickerShape   = regexp.MustCompile(`^(?:[0-9]{4}|[0-9]{3}[A-Za-z]|[0-9]{4}0|[0-9]{3}[A-Za-z]0)(?:\.T|\.JP)?$`)
	leadingTicker = regexp.MustCompile(`^([0-9]{4}|[0-9]{3}[A-Za-z])(?:\.T)?[\s　]+\S`)
)

var subtotalWords = []string{"合計", "小計", "総計", "預り金", "預かり金", "現金", "買付余力", "mrf", "cash", "total", "balance"}

var disclaimerPrefixes = []string{"※", "注", "(注", "*", "＊", "note"}

var accountLabels = []string{"特定口座", "一般口座", "nisa口座", "つみたてnisa", "成長投資枠", "旧nisa"}

var otherSections = []string{"投資信託", "外国株式", "米国株式", "債券", "外貨建", "金・プラチナ"}

// tickerCell returns the index of the first cell that carries a TSE code,
// alone or followed by the company name.
func tickerCell(cells []string) int {
	for i, c := range cells {
		s := strings.TrimSpace(width.Narrow.String(c))
		if tickerShape.MatchString(s) || leadingTicker.MatchString(s) {
			return i
		}
	}
	return -1
}

func numericCells(cells []string, skip int) int {
	n := 0
	for i, c := range cells {
		if i == skip {
			continue
		}
		if _, ok := parseNumber(c); ok {
			n++
		}
	}
	return n
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// ClassifyRow decides what a row of cell texts is. A position needs a
// ticker-shaped cell and at least two numeric cells besides it.
func ClassifyRow(cells []string) RowKind {
	var nonEmpty []string
	for _, c := range cells {
		if s := strings.TrimSpace(c); s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) == 0 {
		return RowUnknown
	}

	ticker := tickerCell(nonEmpty)
	joined := squash(strings.Join(nonEmpty, " "))

	first := squash(nonEmpty[0])
	if containsAny(first, subtotalWords) || (ticker < 0 && containsAny(joined, subtotalWords)) {
		return RowSubtotal
	}
	for _, p := range disclaimerPrefixes {
		if strings.HasPrefix(first, p) {
			return RowDisclaimer
		}
	}
	if ticker < 0 && len(nonEmpty) == 1 && utf8.RuneCountInString(nonEmpty[0]) >= 30 {
		return RowDisclaimer
	}
	if ticker >= 0 && numericCells(nonEmpty, ticker) >= 2 {
		return RowPosition
	}
	return RowUnknown
}

// looksLikePosition reports whether an unclassified row was probably meant
// as a holding and must be surfaced instead of skipped.
func looksLikePosition(cells []string) bool {
	return tickerCell(cells) >= 0 || numericCells(cells, -1) >= 2
}

func accountLabel(cells []string) (string, bool) {
	if len(cells) == 0 || len(cells) > 2 {
		return "", false
	}
	s := squash(cells[0])
	for _, l := range accountLabels {
		if strings.HasPrefix(s, l) {
			return strings.TrimSpace(width.Narrow.String(cells[0])), true
		}
	}
	return "", false
}

func otherSection(cells []string) bool {
	if tickerCell(cells) >= 0 || len(cells) == 0 || len(cells) > 2 {
		return false
	}
	return containsAny(cells[0], otherSections)
}
