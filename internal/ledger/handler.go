package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/identity"
)

// Handler exposes HTTP endpoints for the point ledger. Callers may pass
// either identifier scheme in user refs; the handler canonicalizes
// through the identity service before touching the ledger.
type Handler struct {
	svc      *Service
	identity *identity.Service
	logger   *zap.SugaredLogger
}

func NewHandler(svc *Service, ids *identity.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, identity: ids, logger: logger}
}

// AwardRequest request body for the award endpoint.
type AwardRequest struct {
	UserRef        string `json:"user_ref"`
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason"`
	Category       string `json:"category"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) Award(w http.ResponseWriter, r *http.Request) {
	var req AwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid award payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	userID, err := h.identity.Resolve(r.Context(), req.UserRef)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "identity not found"})
			return
		}
		h.logger.Warnw("award resolve failed", "op", "ledger.award", "ref", req.UserRef, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "award failed"})
		return
	}
	tx, err := h.svc.Award(r.Context(), userID, req.Amount, req.Reason, req.Category, req.IdempotencyKey)
	if err != nil {
		h.logger.Warnw("award failed", "op", "ledger.award", "user", userID, "err", err)
		switch {
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidCategory):
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "award failed"})
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, tx)
}

// BalanceResponse response body for the balance endpoint.
type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolvePath(w, r)
	if !ok {
		return
	}
	balance, err := h.svc.Balance(r.Context(), userID)
	if err != nil {
		// balance reads degrade to zero rather than blocking user flows
		h.logger.Warnw("balance read failed", "op", "ledger.balance", "user", userID, "err", err)
		h.writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID})
		return
	}
	h.writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Balance: balance})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolvePath(w, r)
	if !ok {
		return
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)
	page, err := h.svc.History(r.Context(), userID, pageSize, before)
	if err != nil {
		h.logger.Warnw("history read failed", "op", "ledger.history", "user", userID, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

// resolvePath canonicalizes the {id} path segment. An unknown
// identifier is a 404; only read failures after resolution degrade.
func (h *Handler) resolvePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := h.identity.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "identity not found"})
			return "", false
		}
		h.logger.Warnw("resolve failed", "op", "ledger.resolve", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resolve failed"})
		return "", false
	}
	return userID, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
