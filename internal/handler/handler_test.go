package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/phishtrap/internal/auth"
	"github.com/pavelanni/phishtrap/internal/bank"
	appI18n "github.com/pavelanni/phishtrap/internal/i18n"
	"github.com/pavelanni/phishtrap/internal/model"
	"github.com/pavelanni/phishtrap/internal/snapshot"
	"github.com/pavelanni/phishtrap/internal/store"
)

const adminEmail = "admin@example.com"

type testEnv struct {
	h      *Handler
	store  *store.Store
	router http.Handler
}

func newTestEnv(t *testing.T, cfg model.ServerConfig) *testEnv {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	b, err := bank.Default()
	if err != nil {
		t.Fatalf("bank.Default: %v", err)
	}

	cfg.BcryptCost = bcrypt.MinCost
	cfg.AdminEmail = adminEmail
	if cfg.NumQuestions == 0 {
		cfg.NumQuestions = 3
	}
	h, err := New(s, b, snapshot.NewMemoryStore(0), auth.NewTokens([]byte("test-signing-key"), time.Hour), nil, cfg)
	if err != nil {
		t.Fatalf("handler.New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	return &testEnv{h: h, store: s, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// login registers email and returns a session token for it.
func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	creds := map[string]string{"email": email, "password": "correct horse"}
	if rec := e.do(t, http.MethodPost, "/auth/register", creds, ""); rec.Code != http.StatusOK {
		t.Fatalf("register %s: %d %s", email, rec.Code, rec.Body.String())
	}
	rec := e.do(t, http.MethodPost, "/auth/login", creds, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decode(t, rec, &resp)
	return resp.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	if rec := env.do(t, http.MethodGet, "/healthz", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	creds := map[string]string{"email": "Alice@Example.com", "password": "pw"}

	if rec := env.do(t, http.MethodPost, "/auth/register", creds, ""); rec.Code != http.StatusOK {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodPost, "/auth/register", creds, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected duplicate register to fail with 400, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "alice@example.com", "password": "wrong"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "nobody@example.com", "password": "pw"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown user, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/auth/login", creds, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decode(t, rec, &resp)
	if resp.Token == "" || resp.Email != "alice@example.com" || resp.Admin {
		t.Errorf("unexpected login response: %+v", resp)
	}
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly || cookie.Value != resp.Token {
		t.Errorf("expected an HttpOnly session cookie, got %+v", cookie)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	for _, path := range []string{"/quiz/view", "/quiz/current", "/simulation/current", "/admin/traps"} {
		if rec := env.do(t, http.MethodGet, path, nil, ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
		if rec := env.do(t, http.MethodGet, path, nil, "not-a-token"); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s with bad token: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestSubmitAndViewResults(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	token := env.login(t, "alice@example.com")

	rec := env.do(t, http.MethodGet, "/quiz/view", nil, token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any result, got %d", rec.Code)
	}

	submit := map[string]any{
		"email": "alice@example.com",
		"quiz":  map[string]any{"quizType": "choices", "score": 7, "total": 10, "date": time.Now()},
	}
	if rec := env.do(t, http.MethodPost, "/quiz/submit", submit, token); rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/quiz/view", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("view: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Quiz []model.QuizResult `json:"quiz"`
	}
	decode(t, rec, &resp)
	if len(resp.Quiz) != 1 || resp.Quiz[0].Score != 7 || resp.Quiz[0].Email != "alice@example.com" {
		t.Errorf("unexpected results: %+v", resp.Quiz)
	}

	rec = env.do(t, http.MethodGet, "/quiz/view?simulation=true", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("view simulation: %d", rec.Code)
	}
	decode(t, rec, &resp)
	if resp.Quiz == nil || len(resp.Quiz) != 0 {
		t.Errorf("expected an empty simulation list, got %+v", resp.Quiz)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	token := env.login(t, "alice@example.com")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"unknown quiz type", map[string]any{"quiz": map[string]any{"quizType": "essay", "score": 1, "total": 1}}, http.StatusBadRequest},
		{"score above total", map[string]any{"quiz": map[string]any{"quizType": "choices", "score": 5, "total": 1}}, http.StatusBadRequest},
		{"another user", map[string]any{"email": "bob@example.com", "quiz": map[string]any{"quizType": "choices", "score": 1, "total": 1}}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodPost, "/quiz/submit", tt.body, token); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAdminSeesEveryone(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	alice := env.login(t, "alice@example.com")
	admin := env.login(t, adminEmail)

	submit := map[string]any{"quiz": map[string]any{"quizType": "choices", "score": 2, "total": 3}}
	if rec := env.do(t, http.MethodPost, "/quiz/submit", submit, alice); rec.Code != http.StatusOK {
		t.Fatalf("submit: %d", rec.Code)
	}

	if rec := env.do(t, http.MethodGet, "/quiz/view?email=alice@example.com", nil, admin); rec.Code != http.StatusOK {
		t.Errorf("expected admin to view alice, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/quiz/view?email=admin@example.com", nil, alice); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for alice viewing admin, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/admin/traps", nil, alice); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 on admin page, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/admin/traps", nil, admin); rec.Code != http.StatusOK {
		t.Errorf("expected admin page, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/admin/export", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d", rec.Code)
	}
	var export model.ResultsExport
	decode(t, rec, &export)
	if len(export.Results) != 1 {
		t.Errorf("expected 1 exported result, got %d", len(export.Results))
	}
}

func TestAdminResultsPage(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	alice := env.login(t, "alice@example.com")
	bob := env.login(t, "bob@example.com")
	admin := env.login(t, adminEmail)

	for _, tc := range []struct {
		token string
		score int
	}{{alice, 2}, {bob, 3}} {
		submit := map[string]any{"quiz": map[string]any{"quizType": "choices", "score": tc.score, "total": 3}}
		if rec := env.do(t, http.MethodPost, "/quiz/submit", submit, tc.token); rec.Code != http.StatusOK {
			t.Fatalf("submit: %d", rec.Code)
		}
	}

	if rec := env.do(t, http.MethodGet, "/admin/results", nil, alice); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/admin/results", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("results page: %d", rec.Code)
	}
	html := rec.Body.String()
	for _, want := range []string{"<td>1</td><td>bob@example.com</td>", "<td>2</td><td>alice@example.com</td>"} {
		if !strings.Contains(html, want) {
			t.Errorf("expected page to contain %q", want)
		}
	}

	rec = env.do(t, http.MethodGet, "/admin/results?email=Alice@Example.com", nil, admin)
	if html := rec.Body.String(); !strings.Contains(html, "alice@example.com") || strings.Contains(html, "bob@example.com") {
		t.Errorf("expected only alice after filtering, got %s", html)
	}
}

func TestRecordTrapHashesPassword(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	token := env.login(t, "alice@example.com")

	body := map[string]any{"emailInput": "alice@fb.example", "password": "hunter2"}
	rec := env.do(t, http.MethodPost, "/trap", body, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("record trap: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Error("response leaked the typed password")
	}

	traps, err := env.store.ListTraps(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("ListTraps: %v", err)
	}
	if len(traps) != 1 {
		t.Fatalf("expected 1 trap, got %d", len(traps))
	}
	if bcrypt.CompareHashAndPassword([]byte(traps[0].PasswordHash), []byte("hunter2")) != nil {
		t.Error("expected a bcrypt hash of the typed password")
	}
}

func TestQuizPlayFlow(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{NumQuestions: 2})
	token := env.login(t, "alice@example.com")

	if rec := env.do(t, http.MethodGet, "/quiz/current", nil, token); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before start, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/quiz/start", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}
	var resp playResponse
	decode(t, rec, &resp)
	if resp.View == nil || resp.View.Total != 2 {
		t.Fatalf("expected a 2-question view, got %+v", resp.View)
	}

	// CorrectChoiceIndex is not serialized.
	q := resp.View.Question
	full, ok := env.h.bank.Question(q.ID)
	if !ok {
		t.Fatalf("question %q not in bank", q.ID)
	}
	sel := map[string]any{"questionId": q.ID, "choice": full.CorrectChoiceIndex}
	if rec := env.do(t, http.MethodPost, "/quiz/select", sel, token); rec.Code != http.StatusOK {
		t.Fatalf("select: %d %s", rec.Code, rec.Body.String())
	}
	bad := map[string]any{"questionId": q.ID, "choice": 99}
	if rec := env.do(t, http.MethodPost, "/quiz/select", bad, token); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-range choice, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/quiz/advance", nil, token)
	decode(t, rec, &resp)
	if resp.View.Index != 1 || resp.View.Score != 1 || resp.Outcome != nil {
		t.Fatalf("unexpected state after advance: %+v outcome %+v", resp.View, resp.Outcome)
	}

	rec = env.do(t, http.MethodPost, "/quiz/skip", nil, token)
	decode(t, rec, &resp)
	if resp.Outcome == nil || resp.Outcome.Score != 1 || resp.Outcome.Total != 2 || !resp.Outcome.Submitted {
		t.Fatalf("unexpected outcome: %+v", resp.Outcome)
	}

	results, err := env.store.QueryResults(context.Background(), model.ResultQuery{Email: "alice@example.com", QuizType: model.QuizChoices})
	if err != nil {
		t.Fatalf("QueryResults: %v", err)
	}
	if len(results) != 1 || results[0].Score != 1 {
		t.Errorf("expected one stored result with score 1, got %+v", results)
	}
}

func TestQuizCoachDisabled(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	token := env.login(t, "alice@example.com")
	if rec := env.do(t, http.MethodPost, "/quiz/coach", map[string]any{"missed": []any{}}, token); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a coach, got %d", rec.Code)
	}
}

func TestSimulationFlow(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	token := env.login(t, "alice@example.com")

	rec := env.do(t, http.MethodPost, "/simulation/start", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}
	var resp simResponse
	decode(t, rec, &resp)
	if resp.View == nil || resp.View.Revealed || resp.View.IsPhishing != nil {
		t.Fatalf("expected a hidden first email, got %+v", resp.View)
	}
	total := resp.View.Total

	if rec := env.do(t, http.MethodPost, "/simulation/guess", map[string]string{"choice": "maybe"}, token); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown choice, got %d", rec.Code)
	}

	for i := 0; i < total; i++ {
		rec = env.do(t, http.MethodPost, "/simulation/guess", map[string]string{"choice": "phishing"}, token)
		if rec.Code != http.StatusOK {
			t.Fatalf("guess %d: %d %s", i, rec.Code, rec.Body.String())
		}
		decode(t, rec, &resp)
		if !resp.View.Revealed || resp.View.IsPhishing == nil {
			t.Fatalf("expected the verdict after guessing, got %+v", resp.View)
		}
		env.do(t, http.MethodPost, "/simulation/next", nil, token)
	}

	rec = env.do(t, http.MethodPost, "/simulation/finish", nil, token)
	decode(t, rec, &resp)
	if resp.Outcome == nil || resp.Outcome.Total != total || !resp.Outcome.Submitted {
		t.Fatalf("unexpected outcome: %+v", resp.Outcome)
	}
	if resp.View == nil || resp.View.Index != 0 || resp.View.Attempts != 0 {
		t.Errorf("expected reset view after finish, got %+v", resp.View)
	}
}

func TestDecoyRequiresCSRFToken(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	token := env.login(t, "alice@example.com")

	req := httptest.NewRequest(http.MethodGet, "/decoy/login", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("decoy page: %d", rec.Code)
	}
	var csrf *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName {
			csrf = c
		}
	}
	if csrf == nil || !strings.Contains(rec.Body.String(), csrf.Value) {
		t.Fatal("expected the CSRF token in both cookie and form")
	}

	post := func(formToken string) *httptest.ResponseRecorder {
		form := url.Values{"emailInput": {"alice@fb.example"}, "password": {"pw"}, "csrf_token": {formToken}}
		req := httptest.NewRequest(http.MethodPost, "/decoy/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+token)
		req.AddCookie(csrf)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	if rec := post("forged"); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a forged token, got %d", rec.Code)
	}
	rec = post(csrf.Value)
	if rec.Code != http.StatusOK {
		t.Fatalf("decoy submit: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "failed the phishing test") {
		t.Error("expected the failure notice")
	}

	traps, err := env.store.ListTraps(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("ListTraps: %v", err)
	}
	if len(traps) != 1 || traps[0].Ignored || traps[0].EmailInput != "alice@fb.example" {
		t.Errorf("unexpected traps: %+v", traps)
	}
}

func TestLeaderboardJSON(t *testing.T) {
	env := newTestEnv(t, model.ServerConfig{})
	ctx := context.Background()
	for email, score := range map[string]int{"alice@example.com": 3, "bob@example.com": 8} {
		if _, err := env.store.AppendResult(ctx, email, model.ResultEntry{QuizType: model.QuizChoices, Score: score, Total: 10}); err != nil {
			t.Fatalf("AppendResult: %v", err)
		}
	}

	rec := env.do(t, http.MethodGet, "/leaderboard.json", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("leaderboard: %d", rec.Code)
	}
	var board struct {
		Choices []struct {
			Rank  int    `json:"rank"`
			Email string `json:"email"`
		} `json:"choices"`
	}
	decode(t, rec, &board)
	if len(board.Choices) != 2 || board.Choices[0].Email != "bob@example.com" || board.Choices[0].Rank != 1 {
		t.Errorf("unexpected ranking: %+v", board.Choices)
	}

	if rec := env.do(t, http.MethodGet, "/leaderboard", nil, ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "bob@example.com") {
		t.Errorf("expected the HTML leaderboard to list bob, got %d", rec.Code)
	}
}

func TestNewRejectsRelativeDecoyPath(t *testing.T) {
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer s.Close()
	b, err := bank.Default()
	if err != nil {
		t.Fatalf("bank.Default: %v", err)
	}
	_, err = New(s, b, snapshot.NewMemoryStore(0), auth.NewTokens([]byte("k"), 0), nil, model.ServerConfig{DecoyPath: "decoy"})
	if err == nil {
		t.Error("expected an error for a relative decoy path")
	}
}
