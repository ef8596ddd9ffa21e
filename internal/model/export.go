package model

import "time"

// ResultsExport is the top-level JSON structure written by the export command.
type ResultsExport struct {
	ExportedAt time.Time     `json:"exported_at"`
	Results    []QuizResult  `json:"results"`
	Traps      []TrapEvent   `json:"traps"`
	Summary    []UserSummary `json:"summary"`
}

// UserSummary aggregates one user's attempts and trap outcomes.
type UserSummary struct {
	Email           string `json:"email"`
	ChoicesAttempts int    `json:"choices_attempts"`
	BestChoices     int    `json:"best_choices"`
	SimAttempts     int    `json:"simulation_attempts"`
	BestSimulation  int    `json:"best_simulation"`
	TrapsIgnored    int    `json:"traps_ignored"`
	TrapsFallen     int    `json:"traps_fallen"`
}
