package checkout

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantcart/pkg/cart"
	"github.com/platinummonkey/tenantcart/pkg/httputil"
	"github.com/platinummonkey/tenantcart/pkg/observability"
)

// Handlers serves the cart and checkout API
type Handlers struct {
	processor *Processor
	drafts    DraftStore
}

// NewHandlers creates the checkout handlers. Draft routes are only
// registered when drafts is non-nil.
func NewHandlers(processor *Processor, drafts DraftStore) *Handlers {
	return &Handlers{processor: processor, drafts: drafts}
}

// RegisterRoutes registers checkout routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/v1/cart/preview", h.PreviewCart).Methods("POST")
	router.HandleFunc("/v1/checkout", h.Checkout).Methods("POST")

	if h.drafts == nil {
		return
	}
	router.HandleFunc("/v1/checkout/drafts", h.CreateDraft).Methods("POST")
	router.HandleFunc("/v1/checkout/drafts/{session}", h.GetDraft).Methods("GET")
	router.HandleFunc("/v1/checkout/drafts/{session}", h.SaveDraft).Methods("PUT")
	router.HandleFunc("/v1/checkout/drafts/{session}", h.DeleteDraft).Methods("DELETE")
}

type checkoutResponse struct {
	*Result
	Errors cart.Errors `json:"errors,omitempty"`
}

type draftResponse struct {
	SessionID string        `json:"session_id"`
	Draft     *OrderRequest `json:"draft"`
}

// PreviewCart prices a cart without submitting it
func (h *Handlers) PreviewCart(w http.ResponseWriter, r *http.Request) {
	var req cart.Request
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	c, errs := h.processor.Preview(r.Context(), req)
	status := http.StatusOK
	if len(errs) > 0 {
		status = http.StatusUnprocessableEntity
	}
	httputil.WriteJSONOrError(w, status, c, "failed to encode cart")
}

// Checkout submits an order
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	ctx := r.Context()
	if req.SessionID != "" {
		ctx = observability.WithSessionID(ctx, req.SessionID)
	}

	result, err := h.processor.ProcessOrder(ctx, req)
	if err == nil {
		httputil.WriteJSONOrError(w, http.StatusCreated, checkoutResponse{Result: result}, "failed to encode order")
		return
	}

	var errs cart.Errors
	if !errors.As(err, &errs) {
		observability.FromContext(ctx).WithError(err).Error("checkout failed")
		httputil.WriteInternalError(w, errors.New("checkout failed"))
		return
	}

	status := http.StatusUnprocessableEntity
	switch {
	case errs.Has(CodeOrderSubmission):
		status = http.StatusInternalServerError
		errs = withoutData(errs)
	case errs.Has(CodeGatewayError):
		status = http.StatusBadGateway
	}
	httputil.WriteJSONOrError(w, status, checkoutResponse{Result: result, Errors: errs}, "failed to encode order")
}

// withoutData drops internal error details before they reach the client.
func withoutData(errs cart.Errors) cart.Errors {
	out := make(cart.Errors, len(errs))
	for i, e := range errs {
		e.Data = nil
		out[i] = e
	}
	return out
}

// CreateDraft starts a new checkout session
func (h *Handlers) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	sessionID := NewSessionID()
	if err := h.drafts.Save(r.Context(), sessionID, req); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	req.SessionID = sessionID
	httputil.WriteJSONOrError(w, http.StatusCreated, draftResponse{SessionID: sessionID, Draft: &req}, "failed to encode draft")
}

// GetDraft returns the saved checkout of a session
func (h *Handlers) GetDraft(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := httputil.ParsePathStringOrError(w, r, "session")
	if !ok {
		return
	}
	draft, err := h.drafts.Load(r.Context(), sessionID)
	if errors.Is(err, ErrDraftNotFound) {
		httputil.WriteNotFoundError(w, "draft not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSONOrError(w, http.StatusOK, draftResponse{SessionID: sessionID, Draft: draft}, "failed to encode draft")
}

// SaveDraft replaces the saved checkout of a session
func (h *Handlers) SaveDraft(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := httputil.ParsePathStringOrError(w, r, "session")
	if !ok {
		return
	}
	var req OrderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.drafts.Save(r.Context(), sessionID, req); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// DeleteDraft discards the saved checkout of a session
func (h *Handlers) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := httputil.ParsePathStringOrError(w, r, "session")
	if !ok {
		return
	}
	if err := h.drafts.Delete(r.Context(), sessionID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
