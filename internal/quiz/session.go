// Package quiz implements the per-user quiz and email simulation state
// machines. Sessions hold no shared state; callers persist them between
// requests through a SnapshotStore.
package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pavelanni/phishtrap/internal/bank"
	"github.com/pavelanni/phishtrap/internal/model"
)

// Unanswered marks a question the user skipped.
const Unanswered = -1

// Submitter records a finished attempt.
type Submitter interface {
	Submit(ctx context.Context, entry model.ResultEntry) error
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, entry model.ResultEntry) error

// Submit calls f.
func (f SubmitFunc) Submit(ctx context.Context, entry model.ResultEntry) error {
	return f(ctx, entry)
}

// Outcome describes a finalized attempt.
type Outcome struct {
	QuizType  model.QuizType `json:"quizType"`
	Score     int            `json:"score"`
	Total     int            `json:"total"`
	Submitted bool           `json:"submitted"`
	Missed    []string       `json:"missed,omitempty"`
}

// Session is one multiple-choice quiz attempt.
type Session struct {
	bank *bank.Bank
	size int
	rng  *rand.Rand
	sub  Submitter
	now  func() time.Time

	questions []model.Question
	current   int
	selected  map[string]int
	// scored holds the correctness counted for each question that has
	// been through Advance at least once.
	scored map[string]bool
	score  int
}

// NewSession draws min(n, bank size) questions and fixes their order for
// the life of the attempt. A nil rng uses the global source.
func NewSession(b *bank.Bank, n int, rng *rand.Rand, sub Submitter) *Session {
	s := &Session{
		bank: b,
		size: n,
		rng:  rng,
		sub:  sub,
		now:  time.Now,
	}
	s.reset()
	return s
}

func (s *Session) reset() {
	s.questions = s.bank.Draw(s.size, s.rng)
	s.current = 0
	s.selected = make(map[string]int)
	s.scored = make(map[string]bool)
	s.score = 0
}

// Questions returns the drawn questions in presentation order.
func (s *Session) Questions() []model.Question {
	out := make([]model.Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// Score returns the running score.
func (s *Session) Score() int { return s.score }

// Current returns the index of the question being shown.
func (s *Session) Current() int { return s.current }

// View is the client-facing state of a session.
type View struct {
	Index    int            `json:"index"`
	Total    int            `json:"total"`
	Question model.Question `json:"question"`
	Selected int            `json:"selected"`
	Score    int            `json:"score"`
	Last     bool           `json:"last"`
}

// View returns the current question with the user's pick, or Unanswered.
func (s *Session) View() (View, error) {
	if len(s.questions) == 0 {
		return View{}, fmt.Errorf("%w: session has no questions", model.ErrValidation)
	}
	q := s.questions[s.current]
	sel, ok := s.selected[q.ID]
	if !ok {
		sel = Unanswered
	}
	return View{
		Index:    s.current,
		Total:    len(s.questions),
		Question: q,
		Selected: sel,
		Score:    s.score,
		Last:     s.current == len(s.questions)-1,
	}, nil
}

// SelectChoice records or overwrites the pick for a question in this
// attempt. It does not affect the score.
func (s *Session) SelectChoice(questionID string, choice int) error {
	q, ok := s.question(questionID)
	if !ok {
		return fmt.Errorf("%w: question %q is not part of this attempt", model.ErrValidation, questionID)
	}
	if choice < 0 || choice >= len(q.Choices) {
		return fmt.Errorf("%w: choice %d out of range for question %q", model.ErrValidation, choice, questionID)
	}
	s.selected[questionID] = choice
	return nil
}

func (s *Session) question(id string) (model.Question, bool) {
	for _, q := range s.questions {
		if q.ID == id {
			return q, true
		}
	}
	return model.Question{}, false
}

// Advance scores the current question and moves forward. On the last
// question it finalizes the attempt and returns its outcome; otherwise
// the outcome is nil.
func (s *Session) Advance(ctx context.Context) (*Outcome, error) {
	if len(s.questions) == 0 {
		return nil, fmt.Errorf("%w: session has no questions", model.ErrValidation)
	}
	s.scoreCurrent()
	if s.current < len(s.questions)-1 {
		s.current++
		return nil, nil
	}
	out := s.Finalize(ctx)
	return &out, nil
}

// Skip marks the current question Unanswered and advances.
func (s *Session) Skip(ctx context.Context) (*Outcome, error) {
	if len(s.questions) == 0 {
		return nil, fmt.Errorf("%w: session has no questions", model.ErrValidation)
	}
	s.selected[s.questions[s.current].ID] = Unanswered
	return s.Advance(ctx)
}

// Back moves to the previous question. It is a no-op on the first one.
func (s *Session) Back() {
	if s.current > 0 {
		s.current--
	}
}

// scoreCurrent keeps score equal to the number of scored questions whose
// current answer is correct.
func (s *Session) scoreCurrent() {
	q := s.questions[s.current]
	sel, ok := s.selected[q.ID]
	correct := ok && sel == q.CorrectChoiceIndex

	prev, counted := s.scored[q.ID]
	switch {
	case !counted && correct:
		s.score++
	case counted && prev && !correct:
		s.score--
	case counted && !prev && correct:
		s.score++
	}
	s.scored[q.ID] = correct
}

// Finalize submits the attempt and resets the session with freshly drawn
// questions. A submission failure is logged and reported through
// Outcome.Submitted; the reset happens regardless.
func (s *Session) Finalize(ctx context.Context) Outcome {
	out := Outcome{
		QuizType: model.QuizChoices,
		Score:    s.score,
		Total:    len(s.questions),
	}
	for _, q := range s.questions {
		if correct, ok := s.scored[q.ID]; !ok || !correct {
			out.Missed = append(out.Missed, q.ID)
		}
	}

	if s.sub != nil {
		err := s.sub.Submit(ctx, model.ResultEntry{
			QuizType: model.QuizChoices,
			Score:    out.Score,
			Total:    out.Total,
			Date:     s.now(),
		})
		if err != nil {
			slog.Error("failed to submit quiz result", "score", out.Score, "total", out.Total, "error", err)
		} else {
			out.Submitted = true
		}
	}

	s.reset()
	return out
}
