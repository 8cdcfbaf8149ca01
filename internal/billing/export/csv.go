package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/newsline/newsline/internal/billing"
)

const csvBufferSize = 32 * 1024

// CSVRenderer writes a bill as CSV. Leading "#" lines carry the bill header.
type CSVRenderer struct{}

// NewCSVRenderer constructs the renderer.
func NewCSVRenderer() *CSVRenderer {
	return &CSVRenderer{}
}

// ContentType implements billing.BillRenderer.
func (*CSVRenderer) ContentType() string {
	return "text/csv; charset=utf-8"
}

// Render implements billing.BillRenderer.
func (*CSVRenderer) Render(_ context.Context, w io.Writer, bill billing.Bill) error {
	rows, err := rowsFor(bill.Items)
	if err != nil {
		return err
	}
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true

	comments := []string{
		fmt.Sprintf("# Bill %d", bill.ID),
		fmt.Sprintf("# Period: %s", bill.PeriodLabel),
		fmt.Sprintf("# Customer: %s", oneLine(bill.Customer.Name)),
		fmt.Sprintf("# Mobile: %s", oneLine(bill.Customer.Mobile)),
		fmt.Sprintf("# Address: %s", oneLine(bill.Customer.Address)),
		fmt.Sprintf("# Status: %s", statusLabel(bill.Status)),
	}
	for _, line := range comments {
		if _, err := buf.WriteString(line + "\r\n"); err != nil {
			return err
		}
	}

	if err := writer.Write([]string{"type", "name", "detail", "qty", "rate", "amount"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := writer.Write([]string{
			strings.ToLower(r.Kind), r.Name, r.Detail, strconv.Itoa(r.Qty), r.Rate.StringFixed(2), r.Amount.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"total", "", "", "", "", bill.TotalAmount.StringFixed(2)}); err != nil {
		return err
	}
	if bill.Status == billing.BillPaid {
		if err := writer.Write([]string{"paid", "", "", "", "", bill.PaidAmount.StringFixed(2)}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return buf.Flush()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
