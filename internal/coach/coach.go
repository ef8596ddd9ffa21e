// Package coach asks an OpenAI-compatible model for advice on the quiz
// questions a user missed.
package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/phishtrap/internal/coach/prompts"
	"github.com/pavelanni/phishtrap/internal/model"
)

// Tip is the advice for one missed question.
type Tip struct {
	QuestionID string `json:"question_id"`
	Tip        string `json:"tip"`
}

type tipsResponse struct {
	Tips []Tip `json:"tips"`
}

// MissedQuestion pairs a question with the choice the user picked, or
// a negative index when it was skipped.
type MissedQuestion struct {
	Question model.Question
	Picked   int
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a coach client. An empty variant uses the concise prompt.
func New(baseURL, apiKey, modelName string, variant prompts.PromptVariant) (*Client, error) {
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, err
	}
	if variant == "" {
		variant = prompts.PromptConcise
	}
	if !prompts.IsValidVariant(string(variant)) {
		return nil, fmt.Errorf("unknown coach prompt variant %q", variant)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
	}, nil
}

// Tips returns one tip per missed question. No questions means no call.
func (c *Client) Tips(ctx context.Context, missed []MissedQuestion) ([]Tip, error) {
	if len(missed) == 0 {
		return []Tip{}, nil
	}
	items := make([]prompts.Missed, len(missed))
	for i, m := range missed {
		items[i] = prompts.NewMissed(m.Question, m.Picked)
	}
	systemPrompt, err := prompts.BuildTipsPrompt(c.variant, items)
	if err != nil {
		return nil, fmt.Errorf("build tips prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("coach response", "raw", raw)

	var parsed tipsResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse coach response: %w (raw: %s)", err, raw)
	}

	known := make(map[string]bool, len(missed))
	for _, m := range missed {
		known[m.Question.ID] = true
	}
	tips := make([]Tip, 0, len(parsed.Tips))
	for _, t := range parsed.Tips {
		if known[t.QuestionID] && t.Tip != "" {
			tips = append(tips, t)
		}
	}
	return tips, nil
}
