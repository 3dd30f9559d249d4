package achievement

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	achieveentity "github.com/ovaphlow/pitchfork/service-reputation-go/internal/achievement/entity"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/identity"
)

// Handler exposes achievement evaluation and the unlocked-list read.
type Handler struct {
	svc      *Service
	identity *identity.Service
	logger   *zap.SugaredLogger
}

func NewHandler(svc *Service, ids *identity.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, identity: ids, logger: logger}
}

// Evaluate handles POST /users/{id}/achievements/evaluate and returns
// only the achievements newly unlocked by this call.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolvePath(w, r)
	if !ok {
		return
	}
	newly, err := h.svc.Evaluate(r.Context(), userID)
	if err != nil {
		h.logger.Warnw("evaluate failed", "op", "achievement.evaluate", "user", userID, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "evaluate failed"})
		return
	}
	if newly == nil {
		newly = []*achieveentity.Achievement{}
	}
	h.writeJSON(w, http.StatusOK, newly)
}

func (h *Handler) ListUnlocked(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolvePath(w, r)
	if !ok {
		return
	}
	views, err := h.svc.ListUnlocked(r.Context(), userID)
	if err != nil {
		h.logger.Warnw("list unlocked failed", "op", "achievement.list", "user", userID, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) resolvePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := h.identity.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "identity not found"})
			return "", false
		}
		h.logger.Warnw("resolve failed", "op", "achievement.resolve", "err", err)
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
