package quiz

import (
	"context"
	"testing"

	"github.com/pavelanni/phishtrap/internal/model"
)

func TestSimulationCountsFirstGuessOnly(t *testing.T) {
	s := NewSimulation(newTestBank(t), nil, nil)

	v, err := s.Guess(true)
	if err != nil {
		t.Fatalf("Guess: %v", err)
	}
	if !v.Revealed || v.Correct == nil || !*v.Correct {
		t.Errorf("expected a revealed correct guess, got %+v", v)
	}
	v, err = s.Guess(false)
	if err != nil {
		t.Fatalf("Guess again: %v", err)
	}
	if v.Score != 1 || v.Attempts != 1 {
		t.Errorf("expected repeat guess not to count, got score %d attempts %d", v.Score, v.Attempts)
	}
}

func TestSimulationHighlightsOnlyWhenRevealed(t *testing.T) {
	s := NewSimulation(newTestBank(t), nil, nil)

	v, err := s.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if v.Revealed || len(v.Parts) != 1 || v.IsPhishing != nil {
		t.Errorf("expected hidden verdict and a single plain part, got %+v", v)
	}

	v, err = s.Guess(false)
	if err != nil {
		t.Fatalf("Guess: %v", err)
	}
	if v.IsPhishing == nil || !*v.IsPhishing {
		t.Error("expected the verdict after guessing")
	}
	var cues int
	for _, p := range v.Parts {
		if p.Cue != nil {
			cues++
		}
	}
	if cues != 1 {
		t.Errorf("expected 1 highlighted cue, got %d", cues)
	}
}

func TestSimulationNavigationClamps(t *testing.T) {
	s := NewSimulation(newTestBank(t), nil, nil)

	s.Prev()
	if v, _ := s.Current(); v.Index != 0 {
		t.Errorf("expected index 0, got %d", v.Index)
	}
	s.Next()
	s.Next()
	s.Next()
	if v, _ := s.Current(); v.Index != 1 {
		t.Errorf("expected index clamped at 1, got %d", v.Index)
	}
}

func TestSimulationFinishSubmitsAndResets(t *testing.T) {
	sub := &recordingSubmitter{}
	s := NewSimulation(newTestBank(t), nil, sub)

	if _, err := s.Guess(true); err != nil {
		t.Fatalf("Guess: %v", err)
	}
	s.Next()
	if _, err := s.Guess(true); err != nil {
		t.Fatalf("Guess: %v", err)
	}

	out := s.Finish(context.Background())
	if out.Score != 1 || out.Total != 2 || !out.Submitted {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if len(out.Missed) != 1 || out.Missed[0] != "l1" {
		t.Errorf("expected l1 missed, got %v", out.Missed)
	}
	if len(sub.entries) != 1 || sub.entries[0].QuizType != model.QuizSimulation {
		t.Errorf("unexpected submissions: %+v", sub.entries)
	}
	if v, _ := s.Current(); v.Index != 0 || v.Score != 0 || v.Attempts != 0 {
		t.Errorf("expected reset state, got %+v", v)
	}
}

func TestSimulationSnapshotRoundTrip(t *testing.T) {
	b := newTestBank(t)
	st := mapStore{}
	ctx := context.Background()
	key := SimulationKey("alice@example.com")

	s := NewSimulation(b, seeded(), nil)
	if _, err := s.Guess(true); err != nil {
		t.Fatalf("Guess: %v", err)
	}
	if err := SaveSimulation(ctx, st, key, s); err != nil {
		t.Fatalf("SaveSimulation: %v", err)
	}

	restored, err := LoadSimulation(ctx, st, key, b, nil)
	if err != nil {
		t.Fatalf("LoadSimulation: %v", err)
	}
	want, _ := s.Current()
	got, _ := restored.Current()
	if got.Email.ID != want.Email.ID || got.Attempts != 1 || !got.Revealed {
		t.Errorf("expected restored state %+v, got %+v", want, got)
	}
}
