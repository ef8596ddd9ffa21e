package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/pavelanni/phishtrap/internal/model"
)

// ExportAll builds an export of every result and trap event with a
// per-user summary.
func (s *Store) ExportAll(ctx context.Context) (model.ResultsExport, error) {
	results, err := s.QueryResults(ctx, model.ResultQuery{IncludeAll: true})
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("query results: %w", err)
	}
	traps, err := s.ListTraps(ctx, "")
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("list traps: %w", err)
	}

	byEmail := make(map[string]*model.UserSummary)
	summaryFor := func(email string) *model.UserSummary {
		sum, ok := byEmail[email]
		if !ok {
			sum = &model.UserSummary{Email: email}
			byEmail[email] = sum
		}
		return sum
	}

	for _, r := range results {
		sum := summaryFor(r.Email)
		switch r.QuizType {
		case model.QuizChoices:
			sum.ChoicesAttempts++
			sum.BestChoices = max(sum.BestChoices, r.Score)
		case model.QuizSimulation:
			sum.SimAttempts++
			sum.BestSimulation = max(sum.BestSimulation, r.Score)
		}
	}
	for _, t := range traps {
		sum := summaryFor(t.Email)
		if t.Ignored {
			sum.TrapsIgnored++
		} else {
			sum.TrapsFallen++
		}
	}

	summary := make([]model.UserSummary, 0, len(byEmail))
	for _, sum := range byEmail {
		summary = append(summary, *sum)
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].Email < summary[j].Email })

	if results == nil {
		results = []model.QuizResult{}
	}
	if traps == nil {
		traps = []model.TrapEvent{}
	}
	return model.ResultsExport{
		ExportedAt: s.now(),
		Results:    results,
		Traps:      traps,
		Summary:    summary,
	}, nil
}
