package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newsline/newsline/internal/platform/httpx"
	"github.com/newsline/newsline/internal/shared"
)

// Handler exposes billing over HTTP. Expected business failures are returned
// as 200 with {success:false, message}.
type Handler struct {
	svc       *Service
	logger    *slog.Logger
	limits    Limits
	renderers map[string]BillRenderer
}

// BillRenderer writes a bill in a downloadable format.
type BillRenderer interface {
	ContentType() string
	Render(ctx context.Context, w io.Writer, bill Bill) error
}

// NewHandler builds the handler.
func NewHandler(svc *Service, logger *slog.Logger, limits Limits) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger, limits: limits, renderers: map[string]BillRenderer{}}
}

// WithRenderer serves bills as /bills/{billId}/export.<ext>.
func (h *Handler) WithRenderer(ext string, renderer BillRenderer) *Handler {
	h.renderers[ext] = renderer
	return h
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (shared.Identity, bool) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
	}
	return id, ok
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrForbidden) && !errors.Is(err, httpx.ErrNotFound) {
		h.logger.Error("billing request failed", slog.String("op", op), slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	in, err := parsePeriodQuery(r)
	if err != nil {
		h.fail(w, r, "preview", err)
		return
	}
	preview, err := h.svc.Preview(r.Context(), caller, in.query())
	if err != nil {
		h.fail(w, r, "preview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var in periodInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, "generate", err)
		return
	}
	if err := validateInput(in); err != nil {
		h.fail(w, r, "generate", err)
		return
	}
	result, err := h.svc.Generate(r.Context(), caller, in.query())
	if err != nil {
		h.fail(w, r, "generate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	in, err := parseBillList(r)
	if err != nil {
		h.fail(w, r, "list_bills", err)
		return
	}
	page, err := h.svc.ListBills(r.Context(), caller, BillFilter{
		Status:  BillStatus(in.Status),
		Year:    in.Year,
		Page:    in.Page,
		PerPage: in.PerPage,
	})
	if err != nil {
		h.fail(w, r, "list_bills", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) viewBill(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	billID, err := pathID(chi.URLParam(r, "billId"))
	if err != nil {
		h.fail(w, r, "view_bill", err)
		return
	}
	bill, err := h.svc.ViewBill(r.Context(), caller, billID)
	if err != nil {
		h.fail(w, r, "view_bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	billID, err := pathID(chi.URLParam(r, "billId"))
	if err != nil {
		h.fail(w, r, "mark_paid", err)
		return
	}
	var in markPaidInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, "mark_paid", err)
		return
	}
	outcome, err := h.svc.MarkPaid(r.Context(), caller, billID, in.Amount)
	if err != nil {
		h.fail(w, r, "mark_paid", err)
		return
	}
	httpx.JSON(w, http.StatusOK, outcome)
}

func (h *Handler) requestPayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	billID, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "request_payment", err)
		return
	}
	result, err := h.svc.RequestPayment(r.Context(), caller, billID)
	if err != nil {
		h.fail(w, r, "request_payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	requests, err := h.svc.ListRequests(r.Context(), caller, RequestStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.fail(w, r, "list_requests", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (h *Handler) resolveRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	requestID, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "resolve_request", err)
		return
	}
	var in resolveInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, "resolve_request", err)
		return
	}
	if err := validateInput(in); err != nil {
		h.fail(w, r, "resolve_request", err)
		return
	}
	outcome, err := h.svc.ResolveRequest(r.Context(), caller, requestID, ResolveAction(in.Action))
	if err != nil {
		h.fail(w, r, "resolve_request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, outcome)
}

func (h *Handler) exportBill(ext string, renderer BillRenderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := h.caller(w, r)
		if !ok {
			return
		}
		billID, err := pathID(chi.URLParam(r, "billId"))
		if err != nil {
			h.fail(w, r, "export_bill", err)
			return
		}
		bill, err := h.svc.ViewBill(r.Context(), caller, billID)
		if err != nil {
			h.fail(w, r, "export_bill", err)
			return
		}
		var buf bytes.Buffer
		if err := renderer.Render(r.Context(), &buf, bill); err != nil {
			h.fail(w, r, "export_bill", err)
			return
		}
		w.Header().Set("Content-Type", renderer.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="bill-%d-%04d-%02d.%s"`, bill.ID, bill.Year, bill.Month, ext))
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)
	}
}
