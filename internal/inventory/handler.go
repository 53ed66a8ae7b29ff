package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockpool/internal/platform/httpx"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerActorID        = "X-Actor-ID"
	defaultMovementLimit = 100
	maxMovementLimit     = 1000
)

// RevaluationQueue hands a revaluation to the background worker.
type RevaluationQueue interface {
	EnqueueRevaluation(ctx context.Context, newCurrency decimal.Decimal, actorID int64) (string, error)
}

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	queue     RevaluationQueue
	validator *validator.Validate
}

// NewHandler constructs inventory handler. queue may be nil, in which case
// asynchronous revaluation requests are refused.
func NewHandler(logger *slog.Logger, service *Service, queue RevaluationQueue) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{logger: logger, service: service, queue: queue, validator: v}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{id}", h.handleGetProduct)
	r.Get("/products/{id}/movements", h.handleMovements)
	r.Post("/products/{id}/receive", h.handleReceive)
	r.Post("/receipts", h.handleBulkReceive)
	r.Post("/checkout", h.handleCheckout)
	r.Post("/currency", h.handleRevalue)
	r.Get("/service-loans", h.handleListLoans)
	r.Post("/service-loans", h.handleLoan)
	r.Post("/service-loans/{id}/return", h.handleReturn)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newProductResponse(product))
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	filter := MovementFilter{ProductID: id, Limit: defaultMovementLimit}
	fields := map[string]string{}
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.DateOnly, v)
		if err != nil {
			fields["from"] = "must be YYYY-MM-DD"
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.DateOnly, v)
		if err != nil {
			fields["to"] = "must be YYYY-MM-DD"
		}
		// inclusive of the whole day
		filter.To = to.AddDate(0, 0, 1)
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			fields["limit"] = "must be a positive integer"
		}
		filter.Limit = min(limit, maxMovementLimit)
	}
	if len(fields) > 0 {
		httpx.FieldProblem(w, fields)
		return
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, newMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := req.input(id)
	input.IdempotencyKey = r.Header.Get(headerIdempotencyKey)
	input.ActorID = actorID(r)
	result, err := h.service.ReceiveStock(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newReceiveResponse(result))
}

func (h *Handler) handleBulkReceive(w http.ResponseWriter, r *http.Request) {
	var req bulkReceiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor := actorID(r)
	inputs := make([]ReceiveInput, 0, len(req.Items))
	for _, item := range req.Items {
		in := item.input(item.ProductID)
		in.ActorID = actor
		inputs = append(inputs, in)
	}
	results, err := h.service.ReceiveStockBulk(r.Context(), BulkReceiveInput{
		Items:          inputs,
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
	})
	if err != nil {
		h.failPartial(w, r, err, len(results))
		return
	}
	out := make([]receiveResponse, 0, len(results))
	for _, res := range results {
		out = append(out, newReceiveResponse(res))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": out})
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := CheckoutInput{
		Ref:            strings.TrimSpace(req.Ref),
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
		ActorID:        actorID(r),
		Items:          make([]CheckoutItem, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, CheckoutItem{ProductID: item.ProductID, Qty: item.Qty})
	}
	result, err := h.service.Checkout(r.Context(), input)
	if err != nil {
		h.failPartial(w, r, err, len(result.Lines))
		return
	}
	httpx.JSON(w, http.StatusOK, newCheckoutResponse(result))
}

func (h *Handler) handleRevalue(w http.ResponseWriter, r *http.Request) {
	var req revalueRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.NewCurrency.IsPositive() {
		httpx.FieldProblem(w, map[string]string{"new_currency": "must be greater than 0"})
		return
	}
	actor := actorID(r)
	if req.Async {
		if h.queue == nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "background revaluation is not configured")
			return
		}
		taskID, err := h.queue.EnqueueRevaluation(r.Context(), req.NewCurrency, actor)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, revalueResponse{TaskID: taskID, NewCurrency: req.NewCurrency, Queued: true})
		return
	}
	result, err := h.service.RevalueCurrency(r.Context(), req.NewCurrency, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, revalueResponse{
		RunID:        result.RunID,
		NewCurrency:  result.NewCurrency,
		RowsRevalued: result.RowsRevalued,
	})
}

func (h *Handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListActiveServiceLoans(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]serviceLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, newServiceLogResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"service_loans": out})
}

func (h *Handler) handleLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.LoanToService(r.Context(), LoanInput{
		ProductID: req.ProductID,
		Qty:       req.Qty,
		UnitCost:  req.UnitCost,
		Type:      req.Type,
		Label:     req.Label,
		ActorID:   actorID(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newServiceLogResponse(entry))
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req returnRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.ReturnFromService(r.Context(), ReturnInput{LogID: id, Qty: req.Qty, ActorID: actorID(r)})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newServiceLogResponse(entry))
}

// decode reads and validates the body, writing the problem response itself
// when the request is rejected.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			httpx.RespondError(w, err)
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fieldErr := range verrs {
			fields[fieldPath(fieldErr.Namespace())] = fieldErr.Tag()
		}
		httpx.FieldProblem(w, fields)
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.FieldProblem(w, map[string]string{"id": "must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "inventory request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// failPartial reports a chunked operation that stopped after committing some
// lines; the count lets callers resume from the first unapplied line.
func (h *Handler) failPartial(w http.ResponseWriter, r *http.Request, err error, applied int) {
	if applied > 0 {
		w.Header().Set("X-Applied-Lines", strconv.Itoa(applied))
	}
	h.fail(w, r, err)
}

func actorID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get(headerActorID), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// fieldPath drops the request struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
