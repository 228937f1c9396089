package model

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var (
	numericCode = regexp.MustCompile(`^[0-9]{1,4}$`)
	localCode   = regexp.MustCompile(`^[0-9]{4}0$`)
	alphaCode   = regexp.MustCompile(`^[0-9]{3}[A-Z]$`)
	alphaLocal  = regexp.MustCompile(`^[0-9]{3}[A-Z]0$`)
)

var tickerSuffixes = []string{".TYO", ".JP", ".T", ":JP", " JP", "/T", "(東証)", "東証"}

var tickerPrefixes = []string{"TYO:", "TSE:", "JP:", "東証"}

// NormalizeTicker maps a code as printed by brokers or returned by J-Quants
// to the 4-character TSE code. Full-width characters are narrowed, exchange
// suffixes removed, 5-digit J-Quants codes shortened and numeric codes
// zero-padded.
func NormalizeTicker(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(width.Narrow.String(raw)))
	for _, p := range tickerPrefixes {
		s = strings.TrimPrefix(s, p)
	}
	for _, suf := range tickerSuffixes {
		s = strings.TrimSuffix(s, suf)
	}
	s = strings.TrimSpace(s)

	switch {
	case localCode.MatchString(s), alphaLocal.MatchString(s):
		return s[:4], true
	case alphaCode.MatchString(s):
		return s, true
	case numericCode.MatchString(s):
		return strings.Repeat("0", 4-len(s)) + s, true
	}
	return "", false
}

// LocalCode is the 5-digit form J-Quants expects in queries.
func LocalCode(ticker string) string {
	if len(ticker) == 4 {
		return ticker + "0"
	}
	return ticker
}
