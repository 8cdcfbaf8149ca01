package shared

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatAmount renders amount with two decimals, thousands grouping for tag,
// and the currency symbol, e.g. "₹1,234.50".
func FormatAmount(tag language.Tag, symbol string, amount decimal.Decimal) string {
	whole, frac, _ := strings.Cut(amount.Abs().StringFixed(2), ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return symbol + amount.StringFixed(2)
	}
	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return sign + symbol + message.NewPrinter(tag).Sprintf("%d", n) + "." + frac
}
