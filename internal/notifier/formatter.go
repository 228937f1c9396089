package notifier

import (
	"fmt"
	"html"
	"strings"

	"DividendSentinel/internal/model"
	"DividendSentinel/internal/report"
)

// FormatWeeklySummary condenses a weekly report into a Telegram HTML message:
// the actionable decisions, the decisions that changed and the degraded count.
// The full tables stay in the Markdown report.
func FormatWeeklySummary(r model.WeeklyReport) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>DividendSentinel weekly</b> | %s\n", r.RunAt.Format("2006-01-02")))
	if !r.DataAsOf.IsZero() {
		b.WriteString(fmt.Sprintf("Data as of %s\n", r.DataAsOf.Format("2006-01-02")))
	}
	b.WriteString(fmt.Sprintf("Scored %d tickers, %d complete, %d degraded\n", len(r.Scores), r.Complete, r.Incomplete))

	held, candidates := report.Split(r)
	changes := report.Changes(r)

	if sells := filter(held, model.DecisionSell); len(sells) > 0 {
		b.WriteString("\n🔻 <b>SELL</b>\n")
		writeLines(&b, sells, changes)
	}
	if buys := filter(candidates, model.DecisionBuy); len(buys) > 0 {
		b.WriteString("\n🟢 <b>BUY</b>\n")
		writeLines(&b, buys, changes)
	}

	var changed []model.Score
	for _, s := range r.Scores {
		if _, ok := changes[s.Ticker]; ok && s.Decision != model.DecisionBuy && s.Decision != model.DecisionSell {
			changed = append(changed, s)
		}
	}
	if len(changed) > 0 {
		b.WriteString("\n🔄 <b>Changed</b>\n")
		writeLines(&b, changed, changes)
	}

	if r.Incomplete > 0 {
		b.WriteString(fmt.Sprintf("\n⚠️ %d scores used partial data, see the report\n", r.Incomplete))
	}
	for _, n := range r.Notices {
		b.WriteString(fmt.Sprintf("ℹ️ %s\n", html.EscapeString(n)))
	}
	return b.String()
}

func filter(scores []model.Score, d model.Decision) []model.Score {
	var out []model.Score
	for _, s := range scores {
		if s.Decision == d {
			out = append(out, s)
		}
	}
	return out
}

func writeLines(b *strings.Builder, scores []model.Score, changes map[string]model.Decision) {
	for _, s := range scores {
		line := fmt.Sprintf("  %s %s: %.2f", s.Ticker, html.EscapeString(s.Security.Name), s.Composite)
		if prev, ok := changes[s.Ticker]; ok {
			line += fmt.Sprintf(" (%s → %s)", prev, s.Decision)
		}
		if !s.Complete {
			line += " ⚠️"
		}
		b.WriteString(line + "\n")
	}
}
