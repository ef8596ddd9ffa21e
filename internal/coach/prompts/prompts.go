package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"text/template"

	"github.com/pavelanni/phishtrap/internal/model"
)

// Templates holds the built-in prompt files.
//
//go:embed templates/*.txt
var Templates embed.FS

// PromptVariant selects how much detail the coach gives.
type PromptVariant string

const (
	// PromptConcise asks for a one-sentence tip per question.
	PromptConcise PromptVariant = "concise"
	// PromptDetailed asks for a short explanation per question.
	PromptDetailed PromptVariant = "detailed"
)

var validVariants = map[PromptVariant]bool{
	PromptConcise:  true,
	PromptDetailed: true,
}

var (
	loadOnce      sync.Once
	loadErr       error
	tipsTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// Missed is a question the trainee got wrong, as rendered in the prompt.
type Missed struct {
	ID      string
	Prompt  string
	Correct string
	Picked  string
}

// TipsData holds template data for the tips prompt.
type TipsData struct {
	Missed []Missed
}

// Load parses the prompt templates from fsys once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		tipsTemplates = make(map[PromptVariant]*template.Template)
		for _, v := range []PromptVariant{PromptConcise, PromptDetailed} {
			file := "templates/tips_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New("tips").Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			tipsTemplates[v] = tmpl
		}
	})
	return loadErr
}

// NewMissed describes a question and the choice picked, or
// a negative choice for a skipped question.
func NewMissed(q model.Question, picked int) Missed {
	m := Missed{ID: q.ID, Prompt: q.Prompt}
	if q.CorrectChoiceIndex >= 0 && q.CorrectChoiceIndex < len(q.Choices) {
		m.Correct = q.Choices[q.CorrectChoiceIndex]
	}
	if picked >= 0 && picked < len(q.Choices) {
		m.Picked = q.Choices[picked]
	}
	return m
}

// BuildTipsPrompt renders the tips prompt for the missed questions.
func BuildTipsPrompt(variant PromptVariant, missed []Missed) (string, error) {
	if tipsTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := tipsTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, TipsData{Missed: missed}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
