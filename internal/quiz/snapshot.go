package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/pavelanni/phishtrap/internal/bank"
	"github.com/pavelanni/phishtrap/internal/model"
)

// ErrNoSnapshot is returned by SnapshotStore.Load when nothing is saved
// under the key.
var ErrNoSnapshot = errors.New("no snapshot")

// SnapshotStore persists serialized session state between requests.
type SnapshotStore interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Clear(ctx context.Context, key string) error
}

// SessionKey is the snapshot key of a user's quiz session.
func SessionKey(email string) string { return "quiz:" + email }

// SimulationKey is the snapshot key of a user's email simulation.
func SimulationKey(email string) string { return "simulation:" + email }

// SessionSnapshot is the serializable state of a Session.
type SessionSnapshot struct {
	Size        int             `json:"size"`
	QuestionIDs []string        `json:"questionIds"`
	Current     int             `json:"current"`
	Selected    map[string]int  `json:"selected"`
	Scored      map[string]bool `json:"scored"`
	Score       int             `json:"score"`
}

// Snapshot captures the session state.
func (s *Session) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		Size:        s.size,
		QuestionIDs: make([]string, len(s.questions)),
		Current:     s.current,
		Selected:    make(map[string]int, len(s.selected)),
		Scored:      make(map[string]bool, len(s.scored)),
		Score:       s.score,
	}
	for i, q := range s.questions {
		snap.QuestionIDs[i] = q.ID
	}
	for k, v := range s.selected {
		snap.Selected[k] = v
	}
	for k, v := range s.scored {
		snap.Scored[k] = v
	}
	return snap
}

// RestoreSession rebuilds a session from a snapshot. Question ids missing
// from the bank or an out-of-range pointer yield ErrValidation.
func RestoreSession(b *bank.Bank, snap SessionSnapshot, rng *rand.Rand, sub Submitter) (*Session, error) {
	s := &Session{
		bank:     b,
		size:     snap.Size,
		rng:      rng,
		sub:      sub,
		now:      time.Now,
		current:  snap.Current,
		selected: make(map[string]int, len(snap.Selected)),
		scored:   make(map[string]bool, len(snap.Scored)),
		score:    snap.Score,
	}
	for _, id := range snap.QuestionIDs {
		q, ok := b.Question(id)
		if !ok {
			return nil, fmt.Errorf("%w: unknown question %q in snapshot", model.ErrValidation, id)
		}
		s.questions = append(s.questions, q)
	}
	if len(s.questions) == 0 || snap.Current < 0 || snap.Current >= len(s.questions) {
		return nil, fmt.Errorf("%w: snapshot pointer %d out of range", model.ErrValidation, snap.Current)
	}
	for k, v := range snap.Selected {
		s.selected[k] = v
	}
	for k, v := range snap.Scored {
		s.scored[k] = v
	}
	return s, nil
}

// SaveSession serializes s under key.
func SaveSession(ctx context.Context, st SnapshotStore, key string, s *Session) error {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return st.Save(ctx, key, data)
}

// LoadSession reads and restores the session saved under key.
// Returns ErrNoSnapshot if nothing is saved.
func LoadSession(ctx context.Context, st SnapshotStore, key string, b *bank.Bank, rng *rand.Rand, sub Submitter) (*Session, error) {
	data, err := st.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	var snap SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return RestoreSession(b, snap, rng, sub)
}
