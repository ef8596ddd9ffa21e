package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/phishtrap/internal/handler/views"
	"github.com/pavelanni/phishtrap/internal/leaderboard"
	"github.com/pavelanni/phishtrap/internal/model"
)

// handleAdminResults ranks every attempt per quiz type. The optional email
// query parameter narrows both tables to one user.
func (h *Handler) handleAdminResults(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	tables := make(map[model.QuizType][]leaderboard.Row, 2)
	for _, qt := range []model.QuizType{model.QuizChoices, model.QuizSimulation} {
		res, err := h.store.QueryResults(r.Context(), model.ResultQuery{Email: email, QuizType: qt})
		if err != nil {
			slog.Error("failed to query results", "quiz_type", qt, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		tables[qt] = leaderboard.Rank(res)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := views.AdminResultsPage(email, tables[model.QuizChoices], tables[model.QuizSimulation])
	if err := page.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleAdminTraps(w http.ResponseWriter, r *http.Request) {
	traps, err := h.store.ListTraps(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		slog.Error("failed to list traps", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.AdminTrapsPage(traps).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// handleAdminExport returns every stored result and trap event with a
// per-user summary.
func (h *Handler) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.store.ExportAll(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="phishtrap-export.json"`)
	writeJSON(w, http.StatusOK, export)
}
