package notification

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/skalibog/cryptosignals/pkg/models"
)

// FormatPrice форматирует цену с точностью по ее порядку
func FormatPrice(price float64) string {
	d := decimal.NewFromFloat(price)
	abs := math.Abs(price)
	switch {
	case abs >= 1000:
		return d.StringFixed(2)
	case abs >= 1:
		return d.StringFixed(4)
	default:
		return d.StringFixed(8)
	}
}

// percentFrom изменение от входа в процентах, со знаком
func percentFrom(entry, level float64) string {
	if entry == 0 {
		return "0.00%"
	}
	e := decimal.NewFromFloat(entry)
	pct := decimal.NewFromFloat(level).Sub(e).Div(e).Mul(decimal.NewFromInt(100))
	sign := ""
	if pct.IsPositive() {
		sign = "+"
	}
	return sign + pct.StringFixed(2) + "%"
}

// FormatSignal текст сигнала в HTML-разметке Telegram
func FormatSignal(s *models.Signal) string {
	var b strings.Builder

	icon := "🟢"
	if s.Direction == models.DirectionShort {
		icon = "🔴"
	}
	fmt.Fprintf(&b, "%s <b>%s %s</b> (%s, %s)\n\n", icon, s.Direction, html.EscapeString(s.Pair),
		html.EscapeString(s.Exchange), s.Timeframe)
	fmt.Fprintf(&b, "Вход: <code>%s</code>\n", FormatPrice(s.EntryPrice))
	fmt.Fprintf(&b, "Стоп-лосс: <code>%s</code> (%s)\n", FormatPrice(s.Targets.StopLoss),
		percentFrom(s.EntryPrice, s.Targets.StopLoss))
	for i, tp := range s.Targets.TakeProfits {
		fmt.Fprintf(&b, "TP%d: <code>%s</code> (%s)\n", i+1, FormatPrice(tp), percentFrom(s.EntryPrice, tp))
	}
	fmt.Fprintf(&b, "\nУверенность: %.1f/10, риск/прибыль: %.2f\n", s.Confidence, s.RiskReward())

	if len(s.Reasoning) > 0 {
		b.WriteString("\n")
		for _, r := range s.Reasoning {
			fmt.Fprintf(&b, "• %s\n", html.EscapeString(r))
		}
	}
	fmt.Fprintf(&b, "\n<i>%s · %s</i>", html.EscapeString(s.Strategy), s.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	return b.String()
}
