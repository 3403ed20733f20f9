package notify

import (
	"fmt"
	"html"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"CoinFlow/internal/domain/models"
)

var printer = message.NewPrinter(language.English)

// FormatAlert renders the Telegram HTML message for a triggered alert.
func FormatAlert(e models.AlertEvent) string {
	verb := "rose above"
	if e.Condition == models.ConditionBelow {
		verb = "fell below"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> %s %s\n", html.EscapeString(e.AssetSymbol), verb, FormatPrice(e.TargetPrice))
	fmt.Fprintf(&b, "Current price: <b>%s</b>\n", FormatPrice(e.ActualPrice))
	fmt.Fprintf(&b, "<i>%s</i>", e.TriggeredAt.UTC().Format("2006-01-02 15:04 UTC"))
	return b.String()
}

// FormatPrice groups thousands and keeps more decimals for small prices.
func FormatPrice(p float64) string {
	switch abs := math.Abs(p); {
	case abs >= 1:
		return printer.Sprintf("%.2f", p)
	case abs >= 0.01:
		return printer.Sprintf("%.4f", p)
	default:
		return printer.Sprintf("%.8f", p)
	}
}
