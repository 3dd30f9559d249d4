package activity

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/identity"
)

// Handler exposes the activity recorder endpoints used by producer
// collaborators and the per-user aggregation read.
type Handler struct {
	svc      *Service
	identity *identity.Service
	logger   *zap.SugaredLogger
}

func NewHandler(svc *Service, ids *identity.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, identity: ids, logger: logger}
}

// Counts handles GET /users/{id}/activity?sources=a,b. With no sources
// parameter every registered source is counted.
func (h *Handler) Counts(w http.ResponseWriter, r *http.Request) {
	primaryID, err := h.identity.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "identity not found"})
			return
		}
		h.logger.Warnw("activity resolve failed", "op", "activity.counts", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "activity counts failed"})
		return
	}
	sources := h.svc.SourceNames()
	if raw := strings.TrimSpace(r.URL.Query().Get("sources")); raw != "" {
		sources = strings.Split(raw, ",")
		for i := range sources {
			sources[i] = strings.TrimSpace(sources[i])
		}
	}
	counts, err := h.svc.CountMany(r.Context(), sources, primaryID)
	if err != nil {
		h.logger.Warnw("activity counts failed", "op", "activity.counts", "user", primaryID, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "activity counts failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, counts)
}

// CheckinRequest request body for the event check-in recorder.
type CheckinRequest struct {
	UserRef string `json:"user_ref"`
	EventID string `json:"event_id"`
	// Venue switches the write to the legacy venue recorder table.
	Venue string `json:"venue"`
}

func (h *Handler) RecordCheckin(w http.ResponseWriter, r *http.Request) {
	var req CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid checkin payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if req.Venue != "" {
		v, err := h.svc.RecordVenueVisit(r.Context(), req.UserRef, req.Venue)
		if err != nil {
			h.logger.Warnw("venue checkin failed", "op", "activity.checkin", "err", err)
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.writeJSON(w, http.StatusCreated, v)
		return
	}
	c, err := h.svc.RecordCheckin(r.Context(), req.UserRef, req.EventID)
	if err != nil {
		h.logger.Warnw("checkin failed", "op", "activity.checkin", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusCreated, c)
}

// QuizResultRequest request body for the quiz result recorder.
type QuizResultRequest struct {
	UserRef  string `json:"user_ref"`
	QuizID   string `json:"quiz_id"`
	Score    int    `json:"score"`
	MaxScore int    `json:"max_score"`
}

func (h *Handler) RecordQuizResult(w http.ResponseWriter, r *http.Request) {
	var req QuizResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid quiz result payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	qr, err := h.svc.RecordQuizResult(r.Context(), req.UserRef, req.QuizID, req.Score, req.MaxScore)
	if err != nil {
		h.logger.Warnw("quiz result failed", "op", "activity.quiz", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusCreated, qr)
}

// AIMessageRequest request body for the AI chat log recorder.
type AIMessageRequest struct {
	UserRef string `json:"user_ref"`
}

func (h *Handler) RecordAIMessage(w http.ResponseWriter, r *http.Request) {
	var req AIMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid ai message payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	m, err := h.svc.RecordAIMessage(r.Context(), req.UserRef)
	if err != nil {
		h.logger.Warnw("ai message failed", "op", "activity.ai_message", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusCreated, m)
}

// PurchaseRequest request body for the store order recorder.
type PurchaseRequest struct {
	UserRef    string `json:"user_ref"`
	TotalCents int64  `json:"total_cents"`
}

func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid purchase payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	p, err := h.svc.RecordPurchase(r.Context(), req.UserRef, req.TotalCents)
	if err != nil {
		h.logger.Warnw("purchase failed", "op", "activity.purchase", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
