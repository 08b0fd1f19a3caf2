package handler

import (
	"log/slog"
	"net/http"

	"github.com/avelasco/studyhub/internal/apperror"
	"github.com/avelasco/studyhub/internal/auth"
	"github.com/avelasco/studyhub/internal/model"
	"github.com/avelasco/studyhub/internal/service"
)

// GamificationHandler exposes read endpoints for points and badges.
type GamificationHandler struct {
	svc    *service.GamificationService
	logger *slog.Logger
}

func NewGamificationHandler(svc *service.GamificationService, logger *slog.Logger) *GamificationHandler {
	return &GamificationHandler{svc: svc, logger: logger}
}

// HandlePoints returns the user's point total and event history.
//
// HTTP: GET /api/points
// Auth: required
func (h *GamificationHandler) HandlePoints(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.InvalidCredentials())
		return
	}

	summary, err := h.svc.Summary(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	if summary.Events == nil {
		summary.Events = []model.UserPoint{}
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleBadges returns all active badges plus which ones the user earned.
//
// HTTP: GET /api/badges
// Auth: required
func (h *GamificationHandler) HandleBadges(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.InvalidCredentials())
		return
	}

	badges, err := h.svc.ListBadges(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	earned, err := h.svc.EarnedBadges(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	if badges == nil {
		badges = []model.Badge{}
	}
	if earned == nil {
		earned = []model.EarnedBadge{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"badges": badges,
		"earned": earned,
	})
}
