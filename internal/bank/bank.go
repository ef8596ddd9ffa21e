// Package bank holds the static question and example-email catalogs.
package bank

import (
	"embed"
	"fmt"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/phishtrap/internal/model"
)

//go:embed catalog/*.yaml
var catalogFS embed.FS

// Bank is an immutable catalog of questions and example emails.
type Bank struct {
	questions []model.Question
	byID      map[string]int
	emails    []model.EmailExample
	emailByID map[string]int
}

// Default returns the bank built from the embedded catalogs.
func Default() (*Bank, error) {
	qdata, err := catalogFS.ReadFile("catalog/questions.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded questions: %w", err)
	}
	edata, err := catalogFS.ReadFile("catalog/emails.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded emails: %w", err)
	}
	return Parse(qdata, edata)
}

// LoadQuestionsFile builds a bank from a questions YAML file on disk,
// keeping the embedded example emails.
func LoadQuestionsFile(path string) (*Bank, error) {
	qdata, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	edata, err := catalogFS.ReadFile("catalog/emails.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded emails: %w", err)
	}
	return Parse(qdata, edata)
}

// Parse decodes and validates YAML question and email catalogs.
func Parse(questionsYAML, emailsYAML []byte) (*Bank, error) {
	var questions []model.Question
	if err := yaml.Unmarshal(questionsYAML, &questions); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	var emails []model.EmailExample
	if err := yaml.Unmarshal(emailsYAML, &emails); err != nil {
		return nil, fmt.Errorf("parse emails: %w", err)
	}
	return New(questions, emails)
}

// New validates the catalogs and builds a Bank.
func New(questions []model.Question, emails []model.EmailExample) (*Bank, error) {
	b := &Bank{
		questions: questions,
		byID:      make(map[string]int, len(questions)),
		emails:    emails,
		emailByID: make(map[string]int, len(emails)),
	}
	for i, q := range questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question %d: missing id", i)
		}
		if _, dup := b.byID[q.ID]; dup {
			return nil, fmt.Errorf("question %s: duplicate id", q.ID)
		}
		if len(q.Choices) < 2 {
			return nil, fmt.Errorf("question %s: need at least 2 choices, got %d", q.ID, len(q.Choices))
		}
		if q.CorrectChoiceIndex < 0 || q.CorrectChoiceIndex >= len(q.Choices) {
			return nil, fmt.Errorf("question %s: correct index %d out of range", q.ID, q.CorrectChoiceIndex)
		}
		b.byID[q.ID] = i
	}
	for i, e := range emails {
		if e.ID == "" {
			return nil, fmt.Errorf("email %d: missing id", i)
		}
		if _, dup := b.emailByID[e.ID]; dup {
			return nil, fmt.Errorf("email %s: duplicate id", e.ID)
		}
		b.emailByID[e.ID] = i
	}
	return b, nil
}

// Size returns the number of questions in the catalog.
func (b *Bank) Size() int {
	return len(b.questions)
}

// Question returns the question with the given id.
func (b *Bank) Question(id string) (model.Question, bool) {
	i, ok := b.byID[id]
	if !ok {
		return model.Question{}, false
	}
	return b.questions[i], true
}

// Draw returns min(n, Size()) distinct questions in random order.
// A nil rng uses the global source.
func (b *Bank) Draw(n int, rng *rand.Rand) []model.Question {
	if n <= 0 || n > len(b.questions) {
		n = len(b.questions)
	}
	idx := make([]int, len(b.questions))
	for i := range idx {
		idx[i] = i
	}
	swap := func(i, j int) { idx[i], idx[j] = idx[j], idx[i] }
	if rng != nil {
		rng.Shuffle(len(idx), swap)
	} else {
		rand.Shuffle(len(idx), swap)
	}
	out := make([]model.Question, n)
	for i := range n {
		out[i] = b.questions[idx[i]]
	}
	return out
}

// Emails returns the example emails in catalog order.
func (b *Bank) Emails() []model.EmailExample {
	out := make([]model.EmailExample, len(b.emails))
	copy(out, b.emails)
	return out
}

// Email returns the example email with the given id.
func (b *Bank) Email(id string) (model.EmailExample, bool) {
	i, ok := b.emailByID[id]
	if !ok {
		return model.EmailExample{}, false
	}
	return b.emails[i], true
}
