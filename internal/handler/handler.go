package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pavelanni/phishtrap/internal/auth"
	"github.com/pavelanni/phishtrap/internal/bank"
	"github.com/pavelanni/phishtrap/internal/coach"
	"github.com/pavelanni/phishtrap/internal/model"
	"github.com/pavelanni/phishtrap/internal/quiz"
	"github.com/pavelanni/phishtrap/internal/store"
	"github.com/pavelanni/phishtrap/internal/trap"
)

const (
	defaultDecoyPath = "/decoy/login"
	maxBodyBytes     = 1 << 20
)

var errForbidden = errors.New("forbidden")

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	gateway   *auth.Gateway
	tokens    *auth.Tokens
	bank      *bank.Bank
	snapshots quiz.SnapshotStore
	coach     *coach.Client
	config    model.ServerConfig
	upgrader  websocket.Upgrader
}

// New creates a new Handler. A nil coach disables POST /quiz/coach.
func New(s *store.Store, b *bank.Bank, snaps quiz.SnapshotStore, tokens *auth.Tokens, c *coach.Client, cfg model.ServerConfig) (*Handler, error) {
	if s == nil || b == nil || snaps == nil || tokens == nil {
		return nil, errors.New("handler: store, bank, snapshots and tokens are required")
	}
	if cfg.DecoyPath == "" {
		cfg.DecoyPath = defaultDecoyPath
	}
	if !strings.HasPrefix(cfg.DecoyPath, "/") {
		return nil, fmt.Errorf("handler: decoy path %q must start with /", cfg.DecoyPath)
	}
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")
	cfg.AdminEmail = strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	return &Handler{
		store:     s,
		gateway:   auth.NewGateway(s, cfg.BcryptCost),
		tokens:    tokens,
		bank:      b,
		snapshots: snaps,
		coach:     c,
		config:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealthz)
	r.Get("/leaderboard", h.handleLeaderboardPage)
	r.Get("/leaderboard.json", h.handleLeaderboardJSON)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Post("/register", h.handleRegister)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/quiz/submit", h.handleSubmitResult)
		r.Get("/quiz/view", h.handleViewResults)
		r.Post("/trap", h.handleRecordTrap)

		r.Post("/quiz/start", h.handleQuizStart)
		r.Get("/quiz/current", h.handleQuizCurrent)
		r.Post("/quiz/select", h.handleQuizSelect)
		r.Post("/quiz/advance", h.handleQuizAdvance)
		r.Post("/quiz/skip", h.handleQuizSkip)
		r.Post("/quiz/back", h.handleQuizBack)
		r.Post("/quiz/coach", h.handleQuizCoach)

		r.Post("/simulation/start", h.handleSimStart)
		r.Get("/simulation/current", h.handleSimCurrent)
		r.Post("/simulation/guess", h.handleSimGuess)
		r.Post("/simulation/next", h.handleSimNext)
		r.Post("/simulation/prev", h.handleSimPrev)
		r.Post("/simulation/finish", h.handleSimFinish)
		r.Post("/simulation/reset", h.handleSimReset)

		r.Get("/ws/trap", h.handleTrapWS)

		r.Group(func(r chi.Router) {
			r.Use(h.csrfMiddleware)
			r.Get(h.config.DecoyPath, h.handleDecoyPage)
			r.Post(h.config.DecoyPath, h.handleDecoySubmit)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Get("/admin/results", h.handleAdminResults)
			r.Get("/admin/traps", h.handleAdminTraps)
			r.Get("/admin/export", h.handleAdminExport)
		})
	})
}

// BasePathMiddleware stores the configured URL prefix in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type failure struct {
	Failed  bool   `json:"failed"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, failure{Failed: true, Message: message})
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound), errors.Is(err, quiz.ErrNoSnapshot):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, trap.ErrNotPending), errors.Is(err, trap.ErrNotIdle):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON failure. Internal errors are logged and
// reported with a generic message.
func fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request body: %v", model.ErrValidation, err)
	}
	return nil
}
