package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-ledger/internal/order/application"
	"github.com/dmehra2102/order-ledger/internal/order/domain"
	"github.com/dmehra2102/order-ledger/pkg/apperror"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
	idem    func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithIdempotency guards order creation with mw.
func WithIdempotency(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.idem = mw }
}

func NewHandler(log *slog.Logger, service *application.Service, opts ...Option) *Handler {
	h := &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequireUser)

	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.idem != nil {
		create = h.idem(create)
	}
	r.Method(http.MethodPost, "/", create)
	r.Get("/", h.listOrders)
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.getOrder)
	r.Put("/{id}", h.updateOrder)
	r.Put("/{id}/status", h.setStatus)
	r.Delete("/{id}", h.deleteOrder)
	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, span, err)
		return
	}
	o, err := h.service.CreateOrder(ctx, domain.CreateInput{
		CustomerID: req.CustomerID,
		Items:      req.Items.toInput(),
		Status:     req.Status,
		Notes:      req.Notes,
		ActorID:    UserID(ctx),
	})
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.Int64("order.id", o.ID))
	writeJSON(w, http.StatusCreated, newOrderResp(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id, err := orderID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	o, err := h.service.GetOrder(ctx, id)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResp(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	q := r.URL.Query()
	f := domain.ListFilter{Status: q.Get("status")}
	var err error
	if f.Page, err = intParam(q.Get("page"), "page"); err != nil {
		h.writeError(w, span, err)
		return
	}
	if f.PerPage, err = intParam(q.Get("per_page"), "per_page"); err != nil {
		h.writeError(w, span, err)
		return
	}
	if v := q.Get("customer_id"); v != "" {
		if f.CustomerID, err = strconv.ParseInt(v, 10, 64); err != nil {
			h.writeError(w, span, apperror.Validation("customer_id must be a number"))
			return
		}
	}

	page, err := h.service.ListOrders(ctx, f)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	resp := listResp{
		Orders:      make([]orderResp, 0, len(page.Orders)),
		Total:       page.Total,
		Pages:       page.Pages,
		CurrentPage: page.CurrentPage,
	}
	for _, o := range page.Orders {
		resp.Orders = append(resp.Orders, newOrderResp(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrder")
	defer span.End()

	id, err := orderID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	var req updateOrderReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, span, err)
		return
	}
	in := domain.UpdateInput{Status: req.Status, Notes: req.Notes, ActorID: UserID(ctx)}
	if req.Items != nil {
		items := req.Items.toInput()
		in.Items = &items
	}

	o, err := h.service.UpdateOrder(ctx, id, in)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResp(o))
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SetOrderStatus")
	defer span.End()

	id, err := orderID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	var req statusReq
	if err := decode(r, &req); err != nil {
		h.writeError(w, span, err)
		return
	}
	span.SetAttributes(attribute.String("order.status", req.Status))

	o, err := h.service.SetStatus(ctx, id, req.Status, UserID(ctx))
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResp(o))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteOrder")
	defer span.End()

	id, err := orderID(r)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	if err := h.service.DeleteOrder(ctx, id); err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Order deleted successfully"})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "OrderStats")
	defer span.End()

	s, err := h.service.Stats(ctx)
	if err != nil {
		h.writeError(w, span, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatsResp(s))
}

// orderID parses the {id} path parameter. A non-numeric id names no order.
func orderID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NotFound("order %q not found", raw)
	}
	return id, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Validation("%s must be a number", name)
	}
	return n, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.Validation("invalid request body: %v", err)
	}
	return nil
}

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation, apperror.KindInvalidStatus, apperror.KindInsufficientStock:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, span trace.Span, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.KindInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, "internal error")
		var appErr *apperror.Error
		if !errors.As(err, &appErr) {
			h.log.Error("unexpected handler error", "err", err)
		}
	}
	span.SetAttributes(attribute.String("error.kind", string(kind)))
	writeJSON(w, statusFor(kind), errorResp{Error: string(kind), Message: apperror.Message(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
