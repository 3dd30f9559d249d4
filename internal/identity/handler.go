package identity

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes HTTP endpoints for identity operations
// (provision / resolve / merge).
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// ProvisionRequest request body for the user provisioning endpoint.
type ProvisionRequest struct {
	ExternalAuthID string `json:"external_auth_id"`
	DisplayName    string `json:"display_name"`
}

func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	var req ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid provision payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, err := h.svc.Provision(r.Context(), req.ExternalAuthID, req.DisplayName)
	if err != nil {
		h.logger.Warnw("provision failed", "op", "identity.provision", "err", err)
		switch {
		case errors.Is(err, ErrDuplicateAuthID):
			h.writeJSON(w, http.StatusConflict, map[string]string{"error": "external auth id already bound"})
		default:
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "provision failed"})
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, u)
}

// ResolveResponse carries the canonical id for a looked-up identifier.
type ResolveResponse struct {
	PrimaryID string `json:"primary_id"`
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	anyID := r.URL.Query().Get("id")
	primaryID, err := h.svc.Resolve(r.Context(), anyID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "identity not found"})
			return
		}
		h.logger.Warnw("resolve failed", "op", "identity.resolve", "id", anyID, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resolve failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, ResolveResponse{PrimaryID: primaryID})
}

// MergeRequest request body for the audited identity merge.
type MergeRequest struct {
	SurvivorPrimaryID  string `json:"survivor_primary_id"`
	DuplicatePrimaryID string `json:"duplicate_primary_id"`
	Operator           string `json:"operator"`
	Note               string `json:"note"`
}

func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid merge payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	rec, err := h.svc.Merge(r.Context(), req.SurvivorPrimaryID, req.DuplicatePrimaryID, req.Operator, req.Note)
	if err != nil {
		h.logger.Warnw("merge failed", "op", "identity.merge",
			"survivor", req.SurvivorPrimaryID, "duplicate", req.DuplicatePrimaryID, "err", err)
		switch {
		case errors.Is(err, ErrIdentityNotFound):
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "identity not found"})
		case errors.Is(err, ErrMergeConflict):
			h.writeJSON(w, http.StatusConflict, map[string]string{"error": "merge conflict"})
		default:
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "merge failed"})
		}
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
