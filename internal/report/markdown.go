package report

import (
	"fmt"
	"strings"

	"DividendSentinel/internal/model"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const degradedMark = "⚠"

// Markdown renders the weekly decision sheet.
func Markdown(r model.WeeklyReport) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# DividendSentinel weekly report | %s\n\n", r.RunAt.Format("2006-01-02")))
	asOf := "n/a"
	if !r.DataAsOf.IsZero() {
		asOf = r.DataAsOf.Format("2006-01-02")
	}
	b.WriteString(fmt.Sprintf("Data as of %s. %d complete, %d degraded.", asOf, r.Complete, r.Incomplete))
	if r.RunID != "" {
		b.WriteString(fmt.Sprintf(" Run `%s`.", r.RunID))
	}
	b.WriteString("\n\n")

	for _, n := range r.Notices {
		b.WriteString(fmt.Sprintf("> %s\n", n))
	}
	if len(r.Notices) > 0 {
		b.WriteString("\n")
	}

	changes := Changes(r)
	held, candidates := Split(r)

	b.WriteString("## Holdings\n\n")
	if len(held) == 0 {
		b.WriteString("No holdings.\n\n")
	} else {
		scoreTable(&b, held, changes, true)
	}

	b.WriteString("## Candidates\n\n")
	if len(candidates) == 0 {
		b.WriteString("No candidates.\n\n")
	} else {
		scoreTable(&b, candidates, changes, false)
	}

	details(&b, r.Scores)
	degraded(&b, r.Scores)
	positions(&b, r.Positions)
	return b.String()
}

func scoreTable(b *strings.Builder, scores []model.Score, changes map[string]model.Decision, withWeight bool) {
	b.WriteString("| # | Ticker | Name | Decision | Composite | Value | Dividend | Health | Price | Yield | P/B |")
	if withWeight {
		b.WriteString(" Weight |")
	}
	b.WriteString(" Screen |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|---|---|")
	if withWeight {
		b.WriteString("---|")
	}
	b.WriteString("---|\n")

	for i, s := range scores {
		decision := string(s.Decision)
		composite := fmt.Sprintf("%.2f", s.Composite)
		if !s.Complete {
			decision += " " + degradedMark
			composite += " (partial)"
		}
		if prev, ok := changes[s.Ticker]; ok {
			decision += fmt.Sprintf(" (was %s)", prev)
		}
		b.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s | %s | %s | %s | %s |",
			i+1,
			s.Ticker,
			s.Security.Name,
			decision,
			composite,
			sub(s.Value),
			sub(s.Dividend),
			sub(s.Health),
			yenNum(s.Metrics.Price),
			pct(s.Metrics.TrailingYield),
			ratio(s.Metrics.PB),
		))
		if withWeight {
			b.WriteString(fmt.Sprintf(" %s |", pct(s.Metrics.HoldingWeight)))
		}
		screen := "pass"
		if !s.Screen.Passed {
			screen = "fail"
		}
		b.WriteString(fmt.Sprintf(" %s |\n", screen))
	}
	b.WriteString("\n")
}

// details explains every actionable decision factor by factor.
func details(b *strings.Builder, scores []model.Score) {
	var actionable []model.Score
	for _, s := range scores {
		if s.Decision == model.DecisionBuy || s.Decision == model.DecisionSell {
			actionable = append(actionable, s)
		}
	}
	if len(actionable) == 0 {
		return
	}
	b.WriteString("## Why\n\n")
	for _, s := range actionable {
		b.WriteString(fmt.Sprintf("### %s %s %s\n\n", s.Decision, s.Ticker, s.Security.Name))
		for _, sc := range []model.SubScore{s.Value, s.Dividend, s.Health} {
			b.WriteString(fmt.Sprintf("- **%s** %s", sc.Name, sub(sc)))
			if sc.Note != "" {
				b.WriteString(fmt.Sprintf(" (%s)", sc.Note))
			}
			b.WriteString("\n")
			for _, f := range sc.Factors {
				b.WriteString(fmt.Sprintf("  - %s: %.2f (x%.2f) %s\n", f.Name, f.RawScore, f.Weight, f.Commentary))
			}
		}
		if !s.Screen.Passed {
			b.WriteString(fmt.Sprintf("- screen: %s\n", strings.Join(s.Screen.Reasons, "; ")))
		}
		b.WriteString("\n")
	}
}

func degraded(b *strings.Builder, scores []model.Score) {
	var lines []string
	for _, s := range scores {
		if !s.Complete {
			lines = append(lines, fmt.Sprintf("- %s %s: %s", degradedMark, s.Ticker, strings.Join(s.Issues, "; ")))
		}
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString("## Degraded\n\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")
}

func positions(b *strings.Builder, ps []model.Position) {
	if len(ps) == 0 {
		return
	}
	b.WriteString("## Positions\n\n")
	b.WriteString("| Ticker | Name | Account | Quantity | Avg cost | Cost basis |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, p := range ps {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
			p.Ticker, p.Name, p.Account, p.Quantity.String(), Yen(p.AvgCost), Yen(p.CostBasis())))
	}
	b.WriteString("\n")
}

// Yen formats an amount with the yen sign and thousands separators.
func Yen(d decimal.Decimal) string {
	cur := money.GetCurrency(money.JPY)
	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(d.Mul(factor).Round(0).IntPart(), money.JPY).Display()
}

func yenNum(n model.Num) string {
	if !n.Valid {
		return "-"
	}
	return Yen(decimal.NewFromFloat(n.V))
}

func sub(s model.SubScore) string {
	if !s.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", s.Value)
}

func pct(n model.Num) string {
	if !n.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", n.V*100)
}

func ratio(n model.Num) string {
	if !n.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f", n.V)
}
