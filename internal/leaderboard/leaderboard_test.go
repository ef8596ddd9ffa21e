package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/phishtrap/internal/model"
	"github.com/pavelanni/phishtrap/internal/store"
)

func TestRankOrdersByScoreThenDate(t *testing.T) {
	base := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	results := []model.QuizResult{
		{Email: "late@x.com", Score: 7, Date: base.Add(2 * time.Hour)},
		{Email: "low@x.com", Score: 3, Date: base},
		{Email: "early@x.com", Score: 7, Date: base.Add(time.Hour)},
		{Email: "top@x.com", Score: 9, Date: base.Add(3 * time.Hour)},
	}

	rows := Rank(results)
	want := []string{"top@x.com", "early@x.com", "late@x.com", "low@x.com"}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i, email := range want {
		if rows[i].Email != email {
			t.Errorf("rank %d: expected %s, got %s", i+1, email, rows[i].Email)
		}
		if rows[i].Rank != i+1 {
			t.Errorf("row %d: expected rank %d, got %d", i, i+1, rows[i].Rank)
		}
	}
	if results[0].Email != "late@x.com" {
		t.Error("expected input slice to be left untouched")
	}
}

func TestRankEmpty(t *testing.T) {
	rows := Rank(nil)
	if rows == nil || len(rows) != 0 {
		t.Errorf("expected empty non-nil rows, got %v", rows)
	}
}

func TestBuildFromStore(t *testing.T) {
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	entries := []struct {
		email string
		typ   model.QuizType
		score int
	}{
		{"alice@example.com", model.QuizChoices, 6},
		{"bob@example.com", model.QuizChoices, 9},
		{"alice@example.com", model.QuizSimulation, 5},
	}
	for _, e := range entries {
		if _, err := s.AppendResult(ctx, e.email, model.ResultEntry{QuizType: e.typ, Score: e.score, Total: 10}); err != nil {
			t.Fatalf("AppendResult: %v", err)
		}
	}

	board, err := Build(ctx, s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(board.Choices) != 2 || board.Choices[0].Email != "bob@example.com" {
		t.Errorf("unexpected choices ranking: %+v", board.Choices)
	}
	if len(board.Simulation) != 1 || board.Simulation[0].Score != 5 {
		t.Errorf("unexpected simulation ranking: %+v", board.Simulation)
	}
}

type failingQuerier struct{}

func (failingQuerier) QueryResults(context.Context, model.ResultQuery) ([]model.QuizResult, error) {
	return nil, model.ErrStore
}

func TestBuildPropagatesErrors(t *testing.T) {
	if _, err := Build(context.Background(), failingQuerier{}); !errors.Is(err, model.ErrStore) {
		t.Errorf("expected ErrStore, got %v", err)
	}
}
