package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pavelanni/phishtrap/internal/auth"
	"github.com/pavelanni/phishtrap/internal/model"
)

type submitRequest struct {
	Email string `json:"email"`
	Quiz  struct {
		QuizType model.QuizType `json:"quizType"`
		Score    int            `json:"score"`
		Total    int            `json:"total"`
		Date     time.Time      `json:"date"`
	} `json:"quiz"`
}

// handleSubmitResult appends one attempt. Every failure is reported as 400.
func (h *Handler) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	email, err := h.ownerEmail(r, req.Email)
	if err != nil {
		fail(w, err)
		return
	}

	doc, err := h.store.AppendResult(r.Context(), email, model.ResultEntry{
		QuizType: req.Quiz.QuizType,
		Score:    req.Quiz.Score,
		Total:    req.Quiz.Total,
		Date:     req.Quiz.Date,
	})
	if err != nil {
		slog.Error("failed to submit result", "email", email, "error", err)
		writeError(w, http.StatusBadRequest, "failed to submit result")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": doc})
}

// handleViewResults returns flattened results. Without an email the admin
// sees everyone; other users always see their own.
func (h *Handler) handleViewResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := model.IdentityFromContext(r.Context())

	query := model.ResultQuery{QuizType: model.QuizChoices}
	if parseBool(q.Get("simulation")) {
		query.QuizType = model.QuizSimulation
	}
	query.IncludeAll = parseBool(q.Get("all"))

	if requested := q.Get("email"); requested == "" && h.isAdmin(id) {
		query.Email = ""
	} else {
		email, err := h.ownerEmail(r, requested)
		if err != nil {
			fail(w, err)
			return
		}
		query.Email = email
	}

	results, err := h.store.QueryResults(r.Context(), query)
	if err != nil {
		fail(w, err)
		return
	}
	if results == nil {
		writeError(w, http.StatusNotFound, "no data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz": results})
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

type trapRequest struct {
	Email      string `json:"email"`
	EmailInput string `json:"emailInput"`
	Password   string `json:"password"`
	Ignored    bool   `json:"ignored"`
}

// handleRecordTrap stores a trap resolution. A typed password is kept
// only as a bcrypt hash. Every failure is reported as 400.
func (h *Handler) handleRecordTrap(w http.ResponseWriter, r *http.Request) {
	var req trapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	email, err := h.ownerEmail(r, req.Email)
	if err != nil {
		fail(w, err)
		return
	}

	event, err := h.recordTrap(r, email, req.EmailInput, req.Password, req.Ignored)
	if err != nil {
		slog.Error("failed to record trap", "email", email, "error", err)
		writeError(w, http.StatusBadRequest, "failed to record trap")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": event})
}

func (h *Handler) recordTrap(r *http.Request, email, emailInput, password string, ignored bool) (model.TrapEvent, error) {
	e := model.TrapEvent{Email: email, EmailInput: emailInput, Ignored: ignored}
	if password != "" {
		hash, err := auth.HashPassword(password, h.gateway.Cost())
		if err != nil {
			return model.TrapEvent{}, err
		}
		e.PasswordHash = hash
	}
	return h.store.CreateTrap(r.Context(), e)
}
