package ranking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/identity"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/ranking/entity"
)

// Handler exposes the leaderboard and per-user rank endpoints. Ranking
// is display data, so failures degrade to empty results instead of
// blocking whatever flow asked for them.
type Handler struct {
	svc      *Service
	identity *identity.Service
	logger   *zap.SugaredLogger
}

func NewHandler(svc *Service, ids *identity.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, identity: ids, logger: logger}
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, err := h.svc.Leaderboard(r.Context(), limit, offset)
	if err != nil {
		h.logger.Warnw("leaderboard failed", "op", "ranking.leaderboard", "err", err)
		h.writeJSON(w, http.StatusOK, []*entity.RankEntry{})
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) RankOf(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("id")
	primaryID, err := h.identity.Resolve(r.Context(), ref)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "identity not found"})
			return
		}
		h.logger.Warnw("rank resolve failed", "op", "ranking.rank_of", "ref", ref, "err", err)
		h.writeJSON(w, http.StatusOK, &entity.RankEntry{UserID: ref})
		return
	}
	entry, err := h.svc.RankOf(r.Context(), primaryID)
	if err != nil {
		h.logger.Warnw("rank lookup failed", "op", "ranking.rank_of", "user", primaryID, "err", err)
		h.writeJSON(w, http.StatusOK, &entity.RankEntry{UserID: primaryID})
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
