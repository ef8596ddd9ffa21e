package handler

import (
	"log/slog"
	"net/http"

	"github.com/pavelanni/phishtrap/internal/handler/views"
	"github.com/pavelanni/phishtrap/internal/leaderboard"
)

func (h *Handler) handleLeaderboardPage(w http.ResponseWriter, r *http.Request) {
	board, err := leaderboard.Build(r.Context(), h.store)
	if err != nil {
		slog.Error("failed to build leaderboard", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.LeaderboardPage(board).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleLeaderboardJSON(w http.ResponseWriter, r *http.Request) {
	board, err := leaderboard.Build(r.Context(), h.store)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
