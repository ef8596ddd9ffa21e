package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pavelanni/phishtrap/internal/bank"
	"github.com/pavelanni/phishtrap/internal/model"
)

// Simulation walks a user through the example emails, asking for a
// phishing or legitimate verdict on each.
type Simulation struct {
	emails []model.EmailExample
	sub    Submitter
	now    func() time.Time

	index    int
	guesses  map[string]bool // email id -> guessed phishing
	correct  int
	attempts int
	revealed bool
}

// NewSimulation starts a simulation over the bank's emails, shuffled when
// rng is non-nil.
func NewSimulation(b *bank.Bank, rng *rand.Rand, sub Submitter) *Simulation {
	emails := b.Emails()
	if rng != nil {
		rng.Shuffle(len(emails), func(i, j int) { emails[i], emails[j] = emails[j], emails[i] })
	}
	return &Simulation{
		emails:  emails,
		sub:     sub,
		now:     time.Now,
		guesses: make(map[string]bool),
	}
}

// EmailView is an email as shown to the user. The verdict and
// explanations are only present once revealed.
type EmailView struct {
	Index       int                `json:"index"`
	Total       int                `json:"total"`
	Email       model.EmailExample `json:"email"`
	Parts       []bank.Part        `json:"parts"`
	Revealed    bool               `json:"revealed"`
	Guess       *bool              `json:"guess,omitempty"`
	Correct     *bool              `json:"correct,omitempty"`
	IsPhishing  *bool              `json:"isPhishing,omitempty"`
	Explanation string             `json:"explanation,omitempty"`
	Score       int                `json:"score"`
	Attempts    int                `json:"attempts"`
}

// Current returns the email under the pointer.
func (s *Simulation) Current() (EmailView, error) {
	if len(s.emails) == 0 {
		return EmailView{}, fmt.Errorf("%w: simulation has no emails", model.ErrValidation)
	}
	e := s.emails[s.index]
	v := EmailView{
		Index:    s.index,
		Total:    len(s.emails),
		Email:    e,
		Revealed: s.revealed,
		Score:    s.correct,
		Attempts: s.attempts,
	}
	if !s.revealed {
		v.Parts = []bank.Part{{Text: e.Body}}
		return v, nil
	}
	v.Parts = bank.HighlightCues(e.Body, e.Cues)
	if g, ok := s.guesses[e.ID]; ok {
		correct := g == e.IsPhishing
		v.Guess = &g
		v.Correct = &correct
	}
	phishing := e.IsPhishing
	v.IsPhishing = &phishing
	v.Explanation = e.Explanation
	return v, nil
}

// Guess records a verdict for the current email. Only the first guess on
// an email is counted; later guesses just reveal the answer again.
func (s *Simulation) Guess(phishing bool) (EmailView, error) {
	if len(s.emails) == 0 {
		return EmailView{}, fmt.Errorf("%w: simulation has no emails", model.ErrValidation)
	}
	e := s.emails[s.index]
	if _, answered := s.guesses[e.ID]; !answered {
		s.guesses[e.ID] = phishing
		s.attempts++
		if phishing == e.IsPhishing {
			s.correct++
		}
	}
	s.revealed = true
	return s.Current()
}

// Next moves to the next email, staying on the last one.
func (s *Simulation) Next() {
	s.revealed = false
	s.index = min(s.index+1, max(len(s.emails)-1, 0))
}

// Prev moves to the previous email, staying on the first one.
func (s *Simulation) Prev() {
	s.revealed = false
	s.index = max(s.index-1, 0)
}

// Reset clears all progress.
func (s *Simulation) Reset() {
	s.index = 0
	s.guesses = make(map[string]bool)
	s.correct = 0
	s.attempts = 0
	s.revealed = false
}

// Finish submits the simulation score and resets progress whether or not
// the submission succeeded.
func (s *Simulation) Finish(ctx context.Context) Outcome {
	out := Outcome{
		QuizType: model.QuizSimulation,
		Score:    s.correct,
		Total:    len(s.emails),
	}
	for _, e := range s.emails {
		if g, ok := s.guesses[e.ID]; !ok || g != e.IsPhishing {
			out.Missed = append(out.Missed, e.ID)
		}
	}
	if s.sub != nil {
		err := s.sub.Submit(ctx, model.ResultEntry{
			QuizType: model.QuizSimulation,
			Score:    out.Score,
			Total:    out.Total,
			Date:     s.now(),
		})
		if err != nil {
			slog.Error("failed to submit simulation result", "score", out.Score, "error", err)
		} else {
			out.Submitted = true
		}
	}
	s.Reset()
	return out
}

// SimulationSnapshot is the serializable state of a Simulation.
type SimulationSnapshot struct {
	EmailIDs []string        `json:"emailIds"`
	Index    int             `json:"index"`
	Guesses  map[string]bool `json:"guesses"`
	Correct  int             `json:"correct"`
	Attempts int             `json:"attempts"`
	Revealed bool            `json:"revealed"`
}

// Snapshot captures the simulation state.
func (s *Simulation) Snapshot() SimulationSnapshot {
	snap := SimulationSnapshot{
		EmailIDs: make([]string, len(s.emails)),
		Index:    s.index,
		Guesses:  make(map[string]bool, len(s.guesses)),
		Correct:  s.correct,
		Attempts: s.attempts,
		Revealed: s.revealed,
	}
	for i, e := range s.emails {
		snap.EmailIDs[i] = e.ID
	}
	for k, v := range s.guesses {
		snap.Guesses[k] = v
	}
	return snap
}

// RestoreSimulation rebuilds a simulation from a snapshot.
func RestoreSimulation(b *bank.Bank, snap SimulationSnapshot, sub Submitter) (*Simulation, error) {
	s := &Simulation{
		sub:      sub,
		now:      time.Now,
		index:    snap.Index,
		guesses:  make(map[string]bool, len(snap.Guesses)),
		correct:  snap.Correct,
		attempts: snap.Attempts,
		revealed: snap.Revealed,
	}
	for _, id := range snap.EmailIDs {
		e, ok := b.Email(id)
		if !ok {
			return nil, fmt.Errorf("%w: unknown email %q in snapshot", model.ErrValidation, id)
		}
		s.emails = append(s.emails, e)
	}
	if snap.Index < 0 || (len(s.emails) > 0 && snap.Index >= len(s.emails)) {
		return nil, fmt.Errorf("%w: snapshot pointer %d out of range", model.ErrValidation, snap.Index)
	}
	for k, v := range snap.Guesses {
		s.guesses[k] = v
	}
	return s, nil
}

// SaveSimulation serializes s under key.
func SaveSimulation(ctx context.Context, st SnapshotStore, key string, s *Simulation) error {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal simulation: %w", err)
	}
	return st.Save(ctx, key, data)
}

// LoadSimulation reads and restores the simulation saved under key.
func LoadSimulation(ctx context.Context, st SnapshotStore, key string, b *bank.Bank, sub Submitter) (*Simulation, error) {
	data, err := st.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	var snap SimulationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal simulation: %w", err)
	}
	return RestoreSimulation(b, snap, sub)
}
