package handler

import (
	"log/slog"
	"net/http"

	"github.com/pavelanni/phishtrap/internal/handler/views"
	"github.com/pavelanni/phishtrap/internal/model"
)

func (h *Handler) handleDecoyPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.DecoyLoginPage(h.config.DecoyPath, false).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// handleDecoySubmit records whatever the trainee typed into the mock login
// and shows them they fell for it.
func (h *Handler) handleDecoySubmit(w http.ResponseWriter, r *http.Request) {
	email := model.IdentityFromContext(r.Context()).Email
	event, err := h.recordTrap(r, email, r.FormValue("emailInput"), r.FormValue("password"), false)
	if err != nil {
		slog.Error("failed to record trap", "email", email, "error", err)
		http.Error(w, "failed to record trap", http.StatusInternalServerError)
		return
	}
	slog.Info("trap sprung", "email", email, "trap_id", event.ID, "password_typed", event.PasswordHash != "")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.DecoyLoginPage(h.config.DecoyPath, true).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}
