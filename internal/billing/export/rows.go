// Package export renders generated bills as CSV and PDF downloads.
package export

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/newsline/newsline/internal/billing"
	"github.com/newsline/newsline/internal/shared"
)

// row is a presentation-ready line item.
type row struct {
	Kind   string
	Name   string
	Detail string
	Qty    int
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// title capitalises a label. Casers are stateful, so one is built per call.
func title(s string) string {
	return cases.Title(language.English).String(s)
}

// rowsFor flattens the line item variants. Newspapers have no single rate
// because weekday prices differ; their average rate is shown instead.
func rowsFor(items billing.LineItems) ([]row, error) {
	rows := make([]row, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case billing.NewspaperLine:
			rate := decimal.Zero
			if v.Qty > 0 {
				rate = v.Amount.Div(decimal.NewFromInt(int64(v.Qty))).Round(2)
			}
			rows = append(rows, row{Kind: title(string(v.Kind())), Name: v.Name, Detail: v.Language, Qty: v.Qty, Rate: rate, Amount: v.Amount})
		case billing.BookletLine:
			rows = append(rows, row{Kind: title(string(v.Kind())), Name: v.Title, Qty: v.Qty, Rate: v.Price, Amount: v.Amount})
		default:
			return nil, fmt.Errorf("export: unsupported line item %T", item)
		}
	}
	return rows, nil
}

// statusLabel renders a bill status for people.
func statusLabel(status billing.BillStatus) string {
	return title(string(status))
}

type moneyFormatter struct {
	tag    language.Tag
	symbol string
}

func (f moneyFormatter) format(amount decimal.Decimal) string {
	return shared.FormatAmount(f.tag, f.symbol, amount)
}
