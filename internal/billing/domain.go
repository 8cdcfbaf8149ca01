// Package billing turns a month of delivery records into an invoice and
// drives the customer/agent settlement workflow for it.
package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newsline/newsline/internal/shared"
)

// BillStatus enumerates bill lifecycle states.
type BillStatus string

const (
	BillPending BillStatus = "PENDING"
	BillPaid    BillStatus = "PAID"
)

// RequestStatus enumerates payment request states.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestAccepted RequestStatus = "ACCEPTED"
	RequestRejected RequestStatus = "REJECTED"
)

// ResolveAction is the agent's decision on a payment request.
type ResolveAction string

const (
	ActionAccept ResolveAction = "accept"
	ActionReject ResolveAction = "reject"
)

// ItemKind tags a line item variant.
type ItemKind string

const (
	KindNewspaper ItemKind = "newspaper"
	KindBooklet   ItemKind = "booklet"
)

// LineItem is one aggregated bill row. Implementations are NewspaperLine and
// BookletLine; callers switch on the concrete type.
type LineItem interface {
	Kind() ItemKind
	Quantity() int
	LineAmount() decimal.Decimal
	sealed()
}

// NewspaperLine totals one newspaper across the period.
type NewspaperLine struct {
	ID       int64
	Name     string
	Language string
	Qty      int
	Amount   decimal.Decimal
}

func (NewspaperLine) Kind() ItemKind                { return KindNewspaper }
func (l NewspaperLine) Quantity() int               { return l.Qty }
func (l NewspaperLine) LineAmount() decimal.Decimal { return l.Amount }
func (NewspaperLine) sealed()                       {}

// BookletLine totals one booklet across the period. Price is the most recent
// snapshot price seen in the period.
type BookletLine struct {
	ID     int64
	Title  string
	Qty    int
	Price  decimal.Decimal
	Amount decimal.Decimal
}

func (BookletLine) Kind() ItemKind                { return KindBooklet }
func (l BookletLine) Quantity() int               { return l.Qty }
func (l BookletLine) LineAmount() decimal.Decimal { return l.Amount }
func (BookletLine) sealed()                       {}

// LineItems serialises the variant with an explicit type tag.
type LineItems []LineItem

type lineItemJSON struct {
	Type     ItemKind         `json:"type"`
	ID       int64            `json:"id"`
	Name     string           `json:"name,omitempty"`
	Language string           `json:"language,omitempty"`
	Title    string           `json:"title,omitempty"`
	Qty      int              `json:"qty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Amount   decimal.Decimal  `json:"amount"`
}

// MarshalJSON implements json.Marshaler.
func (items LineItems) MarshalJSON() ([]byte, error) {
	out := make([]lineItemJSON, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case NewspaperLine:
			out = append(out, lineItemJSON{Type: KindNewspaper, ID: v.ID, Name: v.Name, Language: v.Language, Qty: v.Qty, Amount: v.Amount})
		case BookletLine:
			price := v.Price
			out = append(out, lineItemJSON{Type: KindBooklet, ID: v.ID, Title: v.Title, Qty: v.Qty, Price: &price, Amount: v.Amount})
		default:
			return nil, fmt.Errorf("billing: unknown line item %T", item)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (items *LineItems) UnmarshalJSON(data []byte) error {
	var raw []lineItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := make(LineItems, 0, len(raw))
	for _, r := range raw {
		switch r.Type {
		case KindNewspaper:
			decoded = append(decoded, NewspaperLine{ID: r.ID, Name: r.Name, Language: r.Language, Qty: r.Qty, Amount: r.Amount})
		case KindBooklet:
			line := BookletLine{ID: r.ID, Title: r.Title, Qty: r.Qty, Amount: r.Amount}
			if r.Price != nil {
				line.Price = *r.Price
			}
			decoded = append(decoded, line)
		default:
			return fmt.Errorf("billing: unknown line item type %q", r.Type)
		}
	}
	*items = decoded
	return nil
}

// Total sums the line amounts.
func (items LineItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineAmount())
	}
	return total
}

// Period is a calendar month, [Start, End) in UTC.
type Period struct {
	Month int       `json:"month"`
	Year  int       `json:"year"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// NewPeriod validates month and year and builds the month window.
func NewPeriod(month, year int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: month must be 1..12", ErrInvalidInput)
	}
	if year < 2000 || year > 2100 {
		return Period{}, fmt.Errorf("%w: year must be 2000..2100", ErrInvalidInput)
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Month: month,
		Year:  year,
		Start: start,
		End:   start.AddDate(0, 1, 0),
		Label: fmt.Sprintf("%s %d", time.Month(month), year),
	}, nil
}

// CustomerSnapshot is the customer contact captured when the bill was generated.
type CustomerSnapshot struct {
	Name    string `json:"name"`
	Mobile  string `json:"mobile"`
	Address string `json:"address"`
}

// Bill is a generated monthly invoice.
type Bill struct {
	ID              int64            `json:"id"`
	AgentID         int64            `json:"agentId"`
	CustomerID      int64            `json:"customerId"`
	Month           int              `json:"month"`
	Year            int              `json:"year"`
	PeriodLabel     string           `json:"period"`
	Items           LineItems        `json:"items"`
	TotalAmount     decimal.Decimal  `json:"totalAmount"`
	TotalDeliveries int              `json:"totalDeliveries"`
	Status          BillStatus       `json:"status"`
	PaidAmount      decimal.Decimal  `json:"paidAmount"`
	PaidAt          *time.Time       `json:"paidAt,omitempty"`
	GeneratedAt     time.Time        `json:"generatedAt"`
	Customer        CustomerSnapshot `json:"customer"`
}

// OwnedBy reports whether the caller is the bill's agent or customer.
func (b Bill) OwnedBy(id shared.Identity) bool {
	switch id.Role {
	case shared.RoleAgent:
		return id.UserID == b.AgentID
	case shared.RoleCustomer:
		return id.UserID == b.CustomerID
	default:
		return false
	}
}

// Outstanding is the amount still owed on the bill.
func (b Bill) Outstanding() decimal.Decimal {
	return b.TotalAmount.Sub(b.PaidAmount)
}

// PaymentRequest is a customer's request for the agent to confirm payment.
// Resolved requests are retained for history.
type PaymentRequest struct {
	ID          int64           `json:"id"`
	BillID      int64           `json:"billId"`
	CustomerID  int64           `json:"customerId"`
	Amount      decimal.Decimal `json:"amount"`
	Status      RequestStatus   `json:"status"`
	RequestedAt time.Time       `json:"requestedAt"`
	ResolvedAt  *time.Time      `json:"resolvedAt,omitempty"`
	ResolvedBy  *int64          `json:"resolvedBy,omitempty"`
}

// Summary totals an aggregation.
type Summary struct {
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	TotalDeliveries int             `json:"totalDeliveries"`
}

// Aggregation is the priced fold of a period's deliveries.
type Aggregation struct {
	Period  Period    `json:"period"`
	Items   LineItems `json:"items"`
	Summary Summary   `json:"summary"`
}

// PeriodQuery identifies a bill period for one agent/customer pair. Zero ids
// are filled from the caller identity where possible.
type PeriodQuery struct {
	AgentID    int64
	CustomerID int64
	Month      int
	Year       int
}

// Preview reports what a bill for the period would contain.
type Preview struct {
	IsGenerated bool            `json:"isGenerated"`
	BillID      *int64          `json:"billId,omitempty"`
	Status      BillStatus      `json:"status,omitempty"`
	PaidAmount  decimal.Decimal `json:"paidAmount"`
	Period      string          `json:"period"`
	Items       LineItems       `json:"items"`
	Summary     Summary         `json:"summary"`
}

// Outcome is the structured result of an operation whose expected failures
// are business outcomes rather than errors. Reason carries the sentinel.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Reason  error  `json:"-"`
}

// GenerateResult extends Outcome with the created bill.
type GenerateResult struct {
	Outcome
	BillID      int64            `json:"billId,omitempty"`
	TotalAmount *decimal.Decimal `json:"totalAmount,omitempty"`
	ItemsCount  int              `json:"itemsCount,omitempty"`
}

// RequestResult extends Outcome with the created payment request.
type RequestResult struct {
	Outcome
	RequestID int64            `json:"requestId,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

// BillFilter narrows bill listings.
type BillFilter struct {
	AgentID    int64
	CustomerID int64
	Status     BillStatus
	Year       int
	Page       int
	PerPage    int
}

// RequestFilter narrows payment request listings.
type RequestFilter struct {
	AgentID    int64
	CustomerID int64
	Status     RequestStatus
}

// BillPage is one page of bills.
type BillPage struct {
	Bills      []Bill            `json:"bills"`
	Pagination shared.Pagination `json:"pagination"`
}
