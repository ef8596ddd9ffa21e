package model

import (
	"context"
	"time"
)

// QuizType distinguishes the two kinds of recorded attempts.
type QuizType string

const (
	// QuizChoices is the multiple-choice phishing quiz.
	QuizChoices QuizType = "choices"
	// QuizSimulation is the email classification simulation.
	QuizSimulation QuizType = "simulation"
)

// Valid reports whether t is a known quiz type.
func (t QuizType) Valid() bool {
	return t == QuizChoices || t == QuizSimulation
}

// User represents a registered account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity is the minimal claim minted into a session token.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type identityCtxKey struct{}

// ContextWithIdentity stores the authenticated identity in the request context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the authenticated identity from context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*Identity)
	return id
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// ResultEntry is one completed attempt inside a user's result document.
type ResultEntry struct {
	QuizType QuizType  `json:"quizType"`
	Score    int       `json:"score"`
	Total    int       `json:"total,omitempty"`
	Date     time.Time `json:"date"`
}

// ResultDocument holds every attempt recorded for one email.
type ResultDocument struct {
	Email     string        `json:"email"`
	Quiz      []ResultEntry `json:"quiz"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// QuizResult is a flattened result entry tagged with its owner.
type QuizResult struct {
	Email    string    `json:"email"`
	QuizType QuizType  `json:"quizType"`
	Score    int       `json:"score"`
	Total    int       `json:"total,omitempty"`
	Date     time.Time `json:"date"`
}

// ResultQuery filters QueryResults. Empty Email means every owner.
// IncludeAll disables the quiz type filter.
type ResultQuery struct {
	Email      string
	QuizType   QuizType
	IncludeAll bool
}

// TrapEvent records how a user resolved a trap.
type TrapEvent struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Ignored      bool      `json:"ignored"`
	EmailInput   string    `json:"emailInput,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CapturedPassword reports whether a password was typed into the decoy.
func (e TrapEvent) CapturedPassword() bool {
	return e.PasswordHash != ""
}

// Question is a multiple-choice catalog item.
type Question struct {
	ID                 string   `json:"id" yaml:"id"`
	Prompt             string   `json:"prompt" yaml:"prompt"`
	Choices            []string `json:"choices" yaml:"choices"`
	CorrectChoiceIndex int      `json:"-" yaml:"correct"`
}

// Cue is a suspicious (or reassuring) fragment of an example email.
type Cue struct {
	Text        string `json:"text" yaml:"text"`
	Explanation string `json:"explanation" yaml:"explanation"`
}

// EmailExample is one simulated email shown in the classification simulation.
type EmailExample struct {
	ID          string `json:"id" yaml:"id"`
	From        string `json:"from" yaml:"from"`
	DisplayFrom string `json:"displayFrom,omitempty" yaml:"display_from"`
	To          string `json:"to" yaml:"to"`
	Subject     string `json:"subject" yaml:"subject"`
	Date        string `json:"date,omitempty" yaml:"date"`
	Body        string `json:"body" yaml:"body"`
	Cues        []Cue  `json:"-" yaml:"cues"`
	IsPhishing  bool   `json:"-" yaml:"phishing"`
	Explanation string `json:"-" yaml:"explanation"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	NumQuestions  int // questions per quiz attempt
	ShuffleEmails bool
	AdminEmail    string
	SecureCookies bool
	SessionTTL    time.Duration
	TrapMinDelay  time.Duration
	TrapMaxDelay  time.Duration
	TrapMessage   string
	DecoyPath     string
	BasePath      string // URL prefix for sub-path deployments
	BcryptCost    int    // 0 uses the default work factor
}
