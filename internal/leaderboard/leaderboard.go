// Package leaderboard ranks recorded attempts per quiz type.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/phishtrap/internal/model"
)

// Querier reads flattened results.
type Querier interface {
	QueryResults(ctx context.Context, q model.ResultQuery) ([]model.QuizResult, error)
}

// Row is one ranked attempt.
type Row struct {
	Rank  int       `json:"rank"`
	Email string    `json:"email"`
	Score int       `json:"score"`
	Total int       `json:"total,omitempty"`
	Date  time.Time `json:"date"`
}

// Board holds both rankings.
type Board struct {
	Choices    []Row     `json:"choices"`
	Simulation []Row     `json:"simulation"`
	BuiltAt    time.Time `json:"builtAt"`
}

// Build fetches both quiz types concurrently and ranks each by score,
// highest first, with ties going to the earlier attempt.
func Build(ctx context.Context, q Querier) (*Board, error) {
	var choices, simulation []model.QuizResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := q.QueryResults(gctx, model.ResultQuery{QuizType: model.QuizChoices})
		if err != nil {
			return fmt.Errorf("query choices results: %w", err)
		}
		choices = res
		return nil
	})
	g.Go(func() error {
		res, err := q.QueryResults(gctx, model.ResultQuery{QuizType: model.QuizSimulation})
		if err != nil {
			return fmt.Errorf("query simulation results: %w", err)
		}
		simulation = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Board{
		Choices:    Rank(choices),
		Simulation: Rank(simulation),
		BuiltAt:    time.Now(),
	}, nil
}

// Rank sorts results by score descending, earlier date first on ties,
// keeping input order for identical pairs. Rank numbers start at 1.
func Rank(results []model.QuizResult) []Row {
	sorted := make([]model.QuizResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})

	rows := make([]Row, len(sorted))
	for i, r := range sorted {
		rows[i] = Row{
			Rank:  i + 1,
			Email: r.Email,
			Score: r.Score,
			Total: r.Total,
			Date:  r.Date,
		}
	}
	return rows
}
