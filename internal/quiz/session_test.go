package quiz

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/pavelanni/phishtrap/internal/bank"
	"github.com/pavelanni/phishtrap/internal/model"
)

func newTestBank(t *testing.T) *bank.Bank {
	t.Helper()
	questions := []model.Question{
		{ID: "a", Prompt: "A?", Choices: []string{"0", "1", "2"}, CorrectChoiceIndex: 0},
		{ID: "b", Prompt: "B?", Choices: []string{"0", "1"}, CorrectChoiceIndex: 1},
		{ID: "c", Prompt: "C?", Choices: []string{"0", "1", "2", "3"}, CorrectChoiceIndex: 2},
	}
	emails := []model.EmailExample{
		{ID: "p1", Body: "Click to verify now", IsPhishing: true, Cues: []model.Cue{{Text: "verify"}}},
		{ID: "l1", Body: "Your receipt", IsPhishing: false},
	}
	b, err := bank.New(questions, emails)
	if err != nil {
		t.Fatalf("bank.New: %v", err)
	}
	return b
}

type recordingSubmitter struct {
	entries []model.ResultEntry
	err     error
}

func (r *recordingSubmitter) Submit(_ context.Context, e model.ResultEntry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func seeded() *rand.Rand { return rand.New(rand.NewPCG(3, 9)) }

// answer returns the correct or a wrong choice for q.
func answer(q model.Question, correct bool) int {
	if correct {
		return q.CorrectChoiceIndex
	}
	return (q.CorrectChoiceIndex + 1) % len(q.Choices)
}

func TestSessionAllCorrect(t *testing.T) {
	sub := &recordingSubmitter{}
	s := NewSession(newTestBank(t), 3, seeded(), sub)
	ctx := context.Background()

	var out *Outcome
	for _, q := range s.Questions() {
		if err := s.SelectChoice(q.ID, q.CorrectChoiceIndex); err != nil {
			t.Fatalf("SelectChoice: %v", err)
		}
		var err error
		out, err = s.Advance(ctx)
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	if out == nil {
		t.Fatal("expected an outcome after the last question")
	}
	if out.Score != 3 || out.Total != 3 || !out.Submitted || len(out.Missed) != 0 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if len(sub.entries) != 1 || sub.entries[0].Score != 3 || sub.entries[0].QuizType != model.QuizChoices {
		t.Errorf("unexpected submissions: %+v", sub.entries)
	}
	if s.Score() != 0 || s.Current() != 0 {
		t.Errorf("expected reset after finalize, got score %d at %d", s.Score(), s.Current())
	}
}

func TestSessionRevisitAdjustsScore(t *testing.T) {
	tests := []struct {
		name   string
		first  bool
		second bool
		want   int
	}{
		{"correct then wrong", true, false, 0},
		{"wrong then correct", false, true, 1},
		{"correct twice", true, true, 1},
		{"wrong twice", false, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(newTestBank(t), 3, seeded(), nil)
			ctx := context.Background()
			q := s.Questions()[0]

			if err := s.SelectChoice(q.ID, answer(q, tt.first)); err != nil {
				t.Fatalf("SelectChoice: %v", err)
			}
			if _, err := s.Advance(ctx); err != nil {
				t.Fatalf("Advance: %v", err)
			}
			s.Back()
			if err := s.SelectChoice(q.ID, answer(q, tt.second)); err != nil {
				t.Fatalf("SelectChoice: %v", err)
			}
			if _, err := s.Advance(ctx); err != nil {
				t.Fatalf("Advance: %v", err)
			}
			if s.Score() != tt.want {
				t.Errorf("expected score %d, got %d", tt.want, s.Score())
			}
		})
	}
}

func TestSessionSkipNeverRaisesScore(t *testing.T) {
	s := NewSession(newTestBank(t), 3, seeded(), nil)
	ctx := context.Background()
	q := s.Questions()[0]

	if err := s.SelectChoice(q.ID, q.CorrectChoiceIndex); err != nil {
		t.Fatalf("SelectChoice: %v", err)
	}
	if _, err := s.Advance(ctx); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if s.Score() != 1 {
		t.Fatalf("expected score 1, got %d", s.Score())
	}
	s.Back()
	if _, err := s.Skip(ctx); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if s.Score() != 0 {
		t.Errorf("expected skip over a correct answer to drop the score to 0, got %d", s.Score())
	}
	v, err := s.View()
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if v.Index != 1 {
		t.Errorf("expected pointer at 1 after skip, got %d", v.Index)
	}
}

func TestSessionAllSkippedSubmitsZero(t *testing.T) {
	sub := &recordingSubmitter{}
	s := NewSession(newTestBank(t), 3, seeded(), sub)
	ctx := context.Background()

	var out *Outcome
	for range 3 {
		var err error
		out, err = s.Skip(ctx)
		if err != nil {
			t.Fatalf("Skip: %v", err)
		}
	}
	if out == nil || out.Score != 0 || len(out.Missed) != 3 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if len(sub.entries) != 1 || sub.entries[0].Score != 0 {
		t.Errorf("expected one zero-score submission, got %+v", sub.entries)
	}
}

func TestSessionSubmitFailureStillResets(t *testing.T) {
	sub := &recordingSubmitter{err: errors.New("store down")}
	s := NewSession(newTestBank(t), 1, seeded(), sub)
	q := s.Questions()[0]
	if err := s.SelectChoice(q.ID, q.CorrectChoiceIndex); err != nil {
		t.Fatalf("SelectChoice: %v", err)
	}

	out, err := s.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if out == nil || out.Submitted || out.Score != 1 {
		t.Errorf("expected unsubmitted outcome with score 1, got %+v", out)
	}
	if s.Score() != 0 {
		t.Errorf("expected reset score, got %d", s.Score())
	}
}

func TestSelectChoiceValidation(t *testing.T) {
	s := NewSession(newTestBank(t), 3, seeded(), nil)
	q := s.Questions()[0]

	tests := []struct {
		name   string
		id     string
		choice int
	}{
		{"unknown question", "zzz", 0},
		{"negative choice", q.ID, -1},
		{"choice past end", q.ID, len(q.Choices)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SelectChoice(tt.id, tt.choice); !errors.Is(err, model.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestSessionBackAtStartIsNoop(t *testing.T) {
	s := NewSession(newTestBank(t), 3, seeded(), nil)
	s.Back()
	if s.Current() != 0 {
		t.Errorf("expected pointer to stay at 0, got %d", s.Current())
	}
}

func TestSessionSeededOrderIsDeterministic(t *testing.T) {
	b := newTestBank(t)
	a := NewSession(b, 3, rand.New(rand.NewPCG(5, 5)), nil).Questions()
	c := NewSession(b, 3, rand.New(rand.NewPCG(5, 5)), nil).Questions()
	for i := range a {
		if a[i].ID != c[i].ID {
			t.Fatalf("expected identical order, got %v vs %v", a, c)
		}
	}
}

func TestSessionSizeIsCapped(t *testing.T) {
	s := NewSession(newTestBank(t), 10, seeded(), nil)
	if len(s.Questions()) != 3 {
		t.Errorf("expected 3 questions, got %d", len(s.Questions()))
	}
}

type mapStore map[string][]byte

func (m mapStore) Save(_ context.Context, key string, data []byte) error {
	m[key] = data
	return nil
}

func (m mapStore) Load(_ context.Context, key string) ([]byte, error) {
	data, ok := m[key]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return data, nil
}

func (m mapStore) Clear(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

func TestSessionSnapshotRoundTrip(t *testing.T) {
	b := newTestBank(t)
	st := mapStore{}
	ctx := context.Background()
	key := SessionKey("alice@example.com")

	s := NewSession(b, 3, seeded(), nil)
	q := s.Questions()[0]
	if err := s.SelectChoice(q.ID, q.CorrectChoiceIndex); err != nil {
		t.Fatalf("SelectChoice: %v", err)
	}
	if _, err := s.Advance(ctx); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := SaveSession(ctx, st, key, s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	restored, err := LoadSession(ctx, st, key, b, nil, nil)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if restored.Score() != 1 || restored.Current() != 1 {
		t.Errorf("expected score 1 at 1, got %d at %d", restored.Score(), restored.Current())
	}
	for i, rq := range restored.Questions() {
		if rq.ID != s.Questions()[i].ID {
			t.Errorf("question %d: expected %s, got %s", i, s.Questions()[i].ID, rq.ID)
		}
	}

	if _, err := LoadSession(ctx, st, SessionKey("bob@example.com"), b, nil, nil); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestRestoreSessionRejectsUnknownQuestion(t *testing.T) {
	_, err := RestoreSession(newTestBank(t), SessionSnapshot{QuestionIDs: []string{"nope"}}, nil, nil)
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
