package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"time"

	"golang.org/x/text/language"

	"github.com/newsline/newsline/internal/billing"
	"github.com/newsline/newsline/report"
	"github.com/newsline/newsline/web"
)

// HTMLConverter turns HTML into PDF bytes.
type HTMLConverter interface {
	RenderHTML(ctx context.Context, html string, page report.PageOptions) ([]byte, error)
}

// PDFRenderer renders the bill template and converts it through Gotenberg.
type PDFRenderer struct {
	converter HTMLConverter
	tpl       *template.Template
	money     moneyFormatter
}

type pdfRow struct {
	Kind   string
	Name   string
	Detail string
	Qty    int
	Rate   string
	Amount string
}

type pdfPayload struct {
	Bill        billing.Bill
	Rows        []pdfRow
	Total       string
	Paid        string
	PaidOn      string
	StatusLabel string
}

// NewPDFRenderer parses the bill template.
func NewPDFRenderer(converter HTMLConverter, currencySymbol string) (*PDFRenderer, error) {
	tpl, err := template.New("bill_pdf.html").Funcs(template.FuncMap{
		"formatDate": formatDate,
	}).ParseFS(web.Templates, "templates/billing/bill_pdf.html")
	if err != nil {
		return nil, fmt.Errorf("parse bill template: %w", err)
	}
	return &PDFRenderer{
		converter: converter,
		tpl:       tpl,
		money:     moneyFormatter{tag: language.English, symbol: currencySymbol},
	}, nil
}

// ContentType implements billing.BillRenderer.
func (*PDFRenderer) ContentType() string {
	return "application/pdf"
}

// Render implements billing.BillRenderer.
func (p *PDFRenderer) Render(ctx context.Context, w io.Writer, bill billing.Bill) error {
	html, err := p.HTML(bill)
	if err != nil {
		return err
	}
	pdf, err := p.converter.RenderHTML(ctx, html, report.A4)
	if err != nil {
		return fmt.Errorf("export: convert bill %d: %w", bill.ID, err)
	}
	_, err = w.Write(pdf)
	return err
}

// HTML renders the bill template.
func (p *PDFRenderer) HTML(bill billing.Bill) (string, error) {
	rows, err := rowsFor(bill.Items)
	if err != nil {
		return "", err
	}
	payload := pdfPayload{
		Bill:        bill,
		Rows:        make([]pdfRow, 0, len(rows)),
		Total:       p.money.format(bill.TotalAmount),
		StatusLabel: statusLabel(bill.Status),
	}
	for _, r := range rows {
		payload.Rows = append(payload.Rows, pdfRow{
			Kind: r.Kind, Name: r.Name, Detail: r.Detail, Qty: r.Qty,
			Rate: p.money.format(r.Rate), Amount: p.money.format(r.Amount),
		})
	}
	if bill.Status == billing.BillPaid {
		payload.Paid = p.money.format(bill.PaidAmount)
		if bill.PaidAt != nil {
			payload.PaidOn = formatDate(*bill.PaidAt)
		}
	}
	var buf bytes.Buffer
	if err := p.tpl.Execute(&buf, payload); err != nil {
		return "", fmt.Errorf("render bill template: %w", err)
	}
	return buf.String(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("January 2, 2006")
}
