package billing

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type periodInput struct {
	AgentID    int64 `json:"agentId" validate:"gte=0"`
	CustomerID int64 `json:"customerId" validate:"gte=0"`
	Month      int   `json:"month" validate:"required,min=1,max=12"`
	Year       int   `json:"year" validate:"required,min=2000,max=2100"`
}

func (in periodInput) query() PeriodQuery {
	return PeriodQuery{AgentID: in.AgentID, CustomerID: in.CustomerID, Month: in.Month, Year: in.Year}
}

type markPaidInput struct {
	Amount *decimal.Decimal `json:"amount"`
}

type resolveInput struct {
	Action string `json:"action" validate:"required,oneof=accept reject"`
}

type billListInput struct {
	Status  string `validate:"omitempty,oneof=PENDING PAID"`
	Year    int    `validate:"omitempty,min=2000,max=2100"`
	Page    int    `validate:"gte=0"`
	PerPage int    `validate:"gte=0,lte=100"`
}

func validateInput(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func parsePeriodQuery(r *http.Request) (periodInput, error) {
	values := r.URL.Query()
	var (
		in  periodInput
		err error
	)
	if in.AgentID, err = optionalInt64(values.Get("agentId")); err != nil {
		return in, fmt.Errorf("%w: agentId: %v", ErrInvalidInput, err)
	}
	if in.CustomerID, err = optionalInt64(values.Get("customerId")); err != nil {
		return in, fmt.Errorf("%w: customerId: %v", ErrInvalidInput, err)
	}
	if in.Month, err = optionalInt(values.Get("month")); err != nil {
		return in, fmt.Errorf("%w: month: %v", ErrInvalidInput, err)
	}
	if in.Year, err = optionalInt(values.Get("year")); err != nil {
		return in, fmt.Errorf("%w: year: %v", ErrInvalidInput, err)
	}
	return in, validateInput(in)
}

func parseBillList(r *http.Request) (billListInput, error) {
	values := r.URL.Query()
	var (
		in  billListInput
		err error
	)
	in.Status = values.Get("status")
	if in.Year, err = optionalInt(values.Get("year")); err != nil {
		return in, fmt.Errorf("%w: year: %v", ErrInvalidInput, err)
	}
	if in.Page, err = optionalInt(values.Get("page")); err != nil {
		return in, fmt.Errorf("%w: page: %v", ErrInvalidInput, err)
	}
	if in.PerPage, err = optionalInt(values.Get("perPage")); err != nil {
		return in, fmt.Errorf("%w: perPage: %v", ErrInvalidInput, err)
	}
	return in, validateInput(in)
}

func optionalInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func pathID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", ErrInvalidInput, raw)
	}
	return id, nil
}
