package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/event-ticketing/internal/adapters/redis"
	"github.com/robertarktes/event-ticketing/internal/config"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/idempotency"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

const availabilityCacheTTL = 10 * time.Second

type Handlers struct {
	cfg      *config.Config
	checkout *ticketing.CheckoutService
	payments *ticketing.PaymentService
	checkin  *ticketing.CheckInService
	transfer *ticketing.TransferService
	events   *ticketing.EventService
	cache    *redisadapter.Cache
	idemp    *idempotency.Idempotency
	catalog  *mongo.CatalogRepository
	logger   observability.Logger
}

func NewHandlers(
	cfg *config.Config,
	checkout *ticketing.CheckoutService,
	payments *ticketing.PaymentService,
	checkin *ticketing.CheckInService,
	transfer *ticketing.TransferService,
	events *ticketing.EventService,
	cache *redisadapter.Cache,
	idemp *idempotency.Idempotency,
	catalog *mongo.CatalogRepository,
	logger observability.Logger,
) *Handlers {
	return &Handlers{
		cfg:      cfg,
		checkout: checkout,
		payments: payments,
		checkin:  checkin,
		transfer: transfer,
		events:   events,
		cache:    cache,
		idemp:    idemp,
		catalog:  catalog,
		logger:   logger,
	}
}

type paymentResponse struct {
	ID              uuid.UUID   `json:"id"`
	Status          string      `json:"status"`
	Method          string      `json:"method"`
	Amount          string      `json:"amount"`
	TransactionRef  string      `json:"transaction_ref"`
	TicketIDs       []uuid.UUID `json:"ticket_ids"`
	OfflineApproved bool        `json:"offline_approved,omitempty"`
	ApprovedBy      *uuid.UUID  `json:"approved_by,omitempty"`
	ApprovalTime    *time.Time  `json:"approval_time,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		Status:          string(p.Status),
		Method:          string(p.Method),
		Amount:          p.Amount.StringFixed(2),
		TransactionRef:  p.TransactionRef,
		TicketIDs:       p.TicketIDs,
		OfflineApproved: p.OfflineApproved,
		ApprovedBy:      p.ApprovedBy,
		ApprovalTime:    p.ApprovalTime,
		CreatedAt:       p.CreatedAt,
	}
}

type ticketResponse struct {
	ID            uuid.UUID  `json:"id"`
	Code          uuid.UUID  `json:"code"`
	TicketTypeID  uuid.UUID  `json:"ticket_type_id"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	Status        string     `json:"status"`
	CheckedIn     bool       `json:"checked_in"`
	CheckedInTime *time.Time `json:"checked_in_time,omitempty"`
	PurchasedAt   time.Time  `json:"purchased_at"`
}

func toTicketResponse(t *domain.Ticket) ticketResponse {
	return ticketResponse{
		ID:            t.ID,
		Code:          t.Code,
		TicketTypeID:  t.TicketTypeID,
		OwnerID:       t.UserID,
		Status:        string(t.Status),
		CheckedIn:     t.CheckedIn,
		CheckedInTime: t.CheckedInTime,
		PurchasedAt:   t.PurchasedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

// writeError maps domain errors onto HTTP statuses. Unrecognized errors are
// 500s with the message withheld.
func writeError(w http.ResponseWriter, err error) {
	var availErr *domain.AvailabilityError
	if errors.As(err, &availErr) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":            "insufficient availability",
			"ticket_type_id":   availErr.TicketTypeID,
			"ticket_type_name": availErr.TicketTypeName,
			"requested":        availErr.Requested,
			"remaining":        availErr.Remaining,
		})
		return
	}
	var usedErr *domain.AlreadyUsedError
	if errors.As(err, &usedErr) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":           "ticket already used",
			"checked_in_time": usedErr.CheckedInTime.Format(time.RFC3339),
		})
		return
	}
	var statusErr *domain.InvalidStatusError
	if errors.As(err, &statusErr) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":  "ticket not eligible",
			"status": string(statusErr.Status),
		})
		return
	}
	var transferErr *domain.TransferError
	if errors.As(err, &transferErr) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": transferErr.Reason})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrEmptySelection),
		errors.Is(err, domain.ErrNotOfflineMethod):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyProcessed), errors.Is(err, domain.ErrAlreadyApproved),
		errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrSerializationFailure):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict, try again"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		Selections    map[uuid.UUID]int `json:"selections"`
		PaymentMethod string            `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payment, err := h.checkout.Checkout(r.Context(), principal.UserID, req.Selections, domain.PaymentMethod(req.PaymentMethod))
	if err != nil {
		writeError(w, err)
		return
	}

	typeIDs := make([]string, 0, len(req.Selections))
	for id := range req.Selections {
		typeIDs = append(typeIDs, id.String())
	}
	h.cache.InvalidateAvailability(r.Context(), typeIDs...)

	data := writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
	if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data}); err != nil {
		h.logger.WithField("payment_id", payment.ID.String()).Error("store idempotency response failed: ", err)
	}
}

// PaymentCallback receives gateway webhooks. Replays and out-of-order
// deliveries come back 200 so the gateway stops retrying.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Gateway-Key")), []byte(h.cfg.GatewayAPIKey)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Reference string `json:"reference"`
		Outcome   string `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payment, err := h.payments.HandleGatewayEvent(r.Context(), req.Reference, domain.GatewayOutcome(req.Outcome))
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already processed"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handlers) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok || !principal.Staff {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	payment, err := h.payments.ApproveOffline(r.Context(), id, principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handlers) RefundPayment(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok || !principal.Staff {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	payment, err := h.payments.Refund(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	payment, err := h.payments.Payment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handlers) CheckIn(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok || !principal.Staff {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		TicketCode string `json:"ticket_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.checkin.CheckIn(r.Context(), req.TicketCode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	code := chi.URLParam(r, "code")

	var req struct {
		NewOwnerID uuid.UUID `json:"new_owner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	current, err := h.checkin.Ticket(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	if current.UserID != principal.UserID && !principal.Staff {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	ticket, err := h.transfer.Transfer(r.Context(), code, req.NewOwnerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(ticket))
}

func (h *Handlers) GetTicket(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ticket, err := h.checkin.Ticket(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ticket.UserID != principal.UserID && !principal.Staff {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(ticket))
}

func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if cached, err := h.cache.GetAvailability(r.Context(), id.String()); err == nil && cached != nil {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	av, err := h.checkout.Availability(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cache.SetAvailability(r.Context(), id.String(), av, availabilityCacheTTL)
	writeJSON(w, http.StatusOK, av)
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	event, err := h.catalog.GetEvent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handlers) CancelEvent(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok || !principal.Staff {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.events.CancelEvent(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.catalog.SetEventStatus(r.Context(), id, "cancelled")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
