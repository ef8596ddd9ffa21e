package coach

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/phishtrap/internal/model"
)

func fakeCompletions(t *testing.T, content string, gotPrompt *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if gotPrompt != nil && len(req.Messages) > 0 {
			*gotPrompt = req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

var missedQ = model.Question{
	ID:                 "q7",
	Prompt:             "What should you do with an unexpected attachment?",
	Choices:            []string{"Open it", "Verify with the sender"},
	CorrectChoiceIndex: 1,
}

func TestTips(t *testing.T) {
	var prompt string
	srv := fakeCompletions(t,
		`{"tips":[{"question_id":"q7","tip":"Confirm attachments out of band."},{"question_id":"q99","tip":"stray"}]}`,
		&prompt)

	c, err := New(srv.URL+"/v1", "test-key", "test-model", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tips, err := c.Tips(context.Background(), []MissedQuestion{{Question: missedQ, Picked: 0}})
	if err != nil {
		t.Fatalf("Tips: %v", err)
	}
	if len(tips) != 1 || tips[0].QuestionID != "q7" {
		t.Fatalf("expected only the tip for q7, got %+v", tips)
	}
	if !strings.Contains(prompt, "TRAINEE PICKED: Open it") {
		t.Errorf("expected prompt to mention the picked choice:\n%s", prompt)
	}
}

func TestTipsRejectsNonJSON(t *testing.T) {
	srv := fakeCompletions(t, "not json", nil)
	c, err := New(srv.URL+"/v1", "k", "m", "detailed")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Tips(context.Background(), []MissedQuestion{{Question: missedQ, Picked: -1}}); err == nil {
		t.Error("expected parse error")
	}
}

func TestTipsWithoutMissedSkipsCall(t *testing.T) {
	c, err := New("http://127.0.0.1:1/v1", "k", "m", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tips, err := c.Tips(context.Background(), nil)
	if err != nil || len(tips) != 0 {
		t.Errorf("expected no tips and no error, got %v, %v", tips, err)
	}
}

func TestNewRejectsUnknownVariant(t *testing.T) {
	if _, err := New("", "k", "m", "pirate"); err == nil {
		t.Error("expected error for unknown variant")
	}
}
