package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"

	"github.com/pavelanni/phishtrap/internal/coach"
	"github.com/pavelanni/phishtrap/internal/model"
	"github.com/pavelanni/phishtrap/internal/quiz"
)

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// submitter appends finished attempts to email's result document.
func (h *Handler) submitter(email string) quiz.Submitter {
	return quiz.SubmitFunc(func(ctx context.Context, entry model.ResultEntry) error {
		_, err := h.store.AppendResult(ctx, email, entry)
		return err
	})
}

type playResponse struct {
	View    *quiz.View    `json:"view,omitempty"`
	Outcome *quiz.Outcome `json:"outcome,omitempty"`
}

// withSession loads the caller's quiz, applies fn and saves the result.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, fn func(*quiz.Session) (*quiz.Outcome, error)) {
	email := model.IdentityFromContext(r.Context()).Email
	key := quiz.SessionKey(email)

	s, err := quiz.LoadSession(r.Context(), h.snapshots, key, h.bank, newRand(), h.submitter(email))
	if err != nil {
		fail(w, err)
		return
	}
	out, err := fn(s)
	if err != nil {
		fail(w, err)
		return
	}
	h.respondSession(w, r, key, s, out)
}

func (h *Handler) respondSession(w http.ResponseWriter, r *http.Request, key string, s *quiz.Session, out *quiz.Outcome) {
	if err := quiz.SaveSession(r.Context(), h.snapshots, key, s); err != nil {
		fail(w, err)
		return
	}
	resp := playResponse{Outcome: out}
	if v, err := s.View(); err == nil {
		resp.View = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

type startRequest struct {
	Count int `json:"count"`
}

func (h *Handler) handleQuizStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, err)
		return
	}
	if req.Count <= 0 {
		req.Count = h.config.NumQuestions
	}
	email := model.IdentityFromContext(r.Context()).Email
	s := quiz.NewSession(h.bank, req.Count, newRand(), h.submitter(email))
	slog.Info("quiz started", "email", email, "questions", len(s.Questions()))
	h.respondSession(w, r, quiz.SessionKey(email), s, nil)
}

func (h *Handler) handleQuizCurrent(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(*quiz.Session) (*quiz.Outcome, error) { return nil, nil })
}

type selectRequest struct {
	QuestionID string `json:"questionId"`
	Choice     int    `json:"choice"`
}

func (h *Handler) handleQuizSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, err)
		return
	}
	h.withSession(w, r, func(s *quiz.Session) (*quiz.Outcome, error) {
		return nil, s.SelectChoice(req.QuestionID, req.Choice)
	})
}

func (h *Handler) handleQuizAdvance(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *quiz.Session) (*quiz.Outcome, error) {
		return s.Advance(r.Context())
	})
}

func (h *Handler) handleQuizSkip(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *quiz.Session) (*quiz.Outcome, error) {
		return s.Skip(r.Context())
	})
}

func (h *Handler) handleQuizBack(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *quiz.Session) (*quiz.Outcome, error) {
		s.Back()
		return nil, nil
	})
}

type coachRequest struct {
	Missed []struct {
		QuestionID string `json:"questionId"`
		Picked     *int   `json:"picked"`
	} `json:"missed"`
}

// handleQuizCoach asks the configured model for a tip per missed question.
func (h *Handler) handleQuizCoach(w http.ResponseWriter, r *http.Request) {
	if h.coach == nil {
		writeError(w, http.StatusNotFound, "coach is not configured")
		return
	}
	var req coachRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, err)
		return
	}
	missed := make([]coach.MissedQuestion, 0, len(req.Missed))
	for _, m := range req.Missed {
		q, ok := h.bank.Question(m.QuestionID)
		if !ok {
			fail(w, fmt.Errorf("%w: unknown question %q", model.ErrValidation, m.QuestionID))
			return
		}
		picked := quiz.Unanswered
		if m.Picked != nil {
			picked = *m.Picked
		}
		missed = append(missed, coach.MissedQuestion{Question: q, Picked: picked})
	}

	tips, err := h.coach.Tips(r.Context(), missed)
	if err != nil {
		slog.Error("coach request failed", "error", err)
		writeError(w, http.StatusBadGateway, "coach unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tips": tips})
}
