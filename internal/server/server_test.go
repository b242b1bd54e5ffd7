package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"problinx/internal/config"
	"problinx/internal/db"
	"problinx/internal/domain"
	"problinx/internal/engine"
	"problinx/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(workspace)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("problinx"))
	handler, stopTelemetry, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret"},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			stopTelemetry()
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func signUp(t *testing.T, srv *testServer, email string) (string, domain.UserProfile) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/signup", map[string]any{
		"email":    email,
		"password": "long enough password",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("signup status %d: %s", res.StatusCode, string(data))
	}
	var auth AuthResponse
	if err := json.Unmarshal(data, &auth); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	return auth.Token, auth.User
}

func authHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func postProblem(t *testing.T, srv *testServer, token, title string, reward int, deadlineDays int) ProblemResponse {
	t.Helper()
	deadline := time.Now().AddDate(0, 0, deadlineDays).UTC().Format(time.RFC3339)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/problems", map[string]any{
		"title":        title,
		"description":  "needs solving",
		"category":     "software",
		"reward":       reward,
		"deadline":     deadline,
		"tags":         []string{"go"},
		"requirements": []string{"must work"},
	}, authHeader(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create problem %q status %d: %s", title, res.StatusCode, string(data))
	}
	var p ProblemResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal problem: %v", err)
	}
	return p
}

func TestBoardRewardFilterAndSort(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token, _ := signUp(t, srv, "poster@example.com")

	rewards := []int{450, 800, 600, 300, 1200}
	for i, r := range rewards {
		postProblem(t, srv, token, "Problem "+string(rune('A'+i)), r, 10)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/problems?reward=high&sort=reward-high", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page ProblemPageResponse
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("expected 3 high-reward problems, got %d: %s", page.Total, string(data))
	}
	want := []int{1200, 800, 600}
	for i, p := range page.Items {
		if p.Reward == nil || *p.Reward != want[i] {
			t.Fatalf("position %d: expected reward %d, got %+v", i, want[i], p.Reward)
		}
	}
}

func TestBoardRejectsUnknownFilterValue(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/problems?reward=enormous", nil, nil)
	if res.StatusCode != http.StatusBadRequest && res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected rejection, got %d: %s", res.StatusCode, string(data))
	}
}

func TestCreateProblemRequiresAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/problems", map[string]any{
		"title": "anonymous post",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
}

func TestCreateProblemValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token, _ := signUp(t, srv, "poster@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/problems", map[string]any{
		"title":        "no deadline",
		"description":  "x",
		"category":     "software",
		"tags":         []string{"go"},
		"requirements": []string{"works"},
	}, authHeader(token))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing deadline, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token, user := signUp(t, srv, "me@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var profile domain.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		t.Fatalf("unmarshal profile: %v", err)
	}
	if profile.ID != user.ID || profile.Email != "me@example.com" {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, authHeader("garbage.token.here"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	signUp(t, srv, "solver@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email":    "solver@example.com",
		"password": "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
}

func TestProblemViewIncrements(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token, _ := signUp(t, srv, "poster@example.com")
	p := postProblem(t, srv, token, "Watched problem", 500, 5)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/problems/"+p.ID+"/views", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("view status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/problems/"+p.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var got ProblemResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Views != 1 {
		t.Fatalf("expected views=1, got %d", got.Views)
	}
}

func TestSolutionFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	posterToken, _ := signUp(t, srv, "poster@example.com")
	solverToken, _ := signUp(t, srv, "solver@example.com")
	p := postProblem(t, srv, posterToken, "Solvable problem", 700, 7)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/problems/"+p.ID+"/solutions", map[string]any{
		"title":       "A fix",
		"description": "Patch the scheduler",
	}, authHeader(solverToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("solution status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/problems/"+p.ID+"/solutions", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list solutions status %d: %s", res.StatusCode, string(data))
	}
	var solutions []domain.Solution
	if err := json.Unmarshal(data, &solutions); err != nil {
		t.Fatalf("unmarshal solutions: %v", err)
	}
	if len(solutions) != 1 || solutions[0].Status != "pending" {
		t.Fatalf("unexpected solutions: %+v", solutions)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/problems/"+p.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get problem status %d", res.StatusCode)
	}
	var got ProblemResponse
	_ = json.Unmarshal(data, &got)
	if got.Submissions != 1 {
		t.Fatalf("expected submissions=1, got %d", got.Submissions)
	}
}

func TestChatFallbackDeterministic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	var replies []domain.BotReply
	for i := 0; i < 2; i++ {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/chat/messages", map[string]any{
			"text": "what is your pricing?",
		}, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("chat status %d: %s", res.StatusCode, string(data))
		}
		var reply domain.BotReply
		if err := json.Unmarshal(data, &reply); err != nil {
			t.Fatalf("unmarshal reply: %v", err)
		}
		replies = append(replies, reply)
	}
	if replies[0].Text != replies[1].Text {
		t.Fatalf("fallback replies differ: %q vs %q", replies[0].Text, replies[1].Text)
	}
	if replies[0].Text == "" {
		t.Fatal("empty reply text")
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/chat/messages", map[string]any{"text": "  "}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d: %s", res.StatusCode, string(data))
	}
}

func TestQuickReplies(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/chat/quick-replies", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("quick replies status %d: %s", res.StatusCode, string(data))
	}
	var replies []string
	if err := json.Unmarshal(data, &replies); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(replies) != 5 {
		t.Fatalf("expected 5 quick replies, got %v", replies)
	}
}

func TestPartnerApplication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token, _ := signUp(t, srv, "partner@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/partners/applications", map[string]any{
		"company_name":  "Acme",
		"description":   "Consulting",
		"contact_email": "sales@acme.test",
	}, authHeader(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("apply status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/partners/applications/mine", nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("mine status %d: %s", res.StatusCode, string(data))
	}
	var app domain.PartnerApplication
	if err := json.Unmarshal(data, &app); err != nil {
		t.Fatalf("unmarshal application: %v", err)
	}
	if app.Status != "pending" || app.CompanyName != "Acme" {
		t.Fatalf("unexpected application: %+v", app)
	}
}
