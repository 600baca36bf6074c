package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"tasktrove/internal/db"
	"tasktrove/internal/engine"
	"tasktrove/internal/migrate"
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
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, nil)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
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
	req.Header.Set("X-Actor-Id", "tester")
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

func createTestProject(t *testing.T, srv *testServer) ProjectResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name": "Home",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p ProjectResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if len(p.Sections) == 0 {
		t.Fatalf("project has no sections: %s", string(data))
	}
	return p
}

func TestCreateTaskAndMove(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createTestProject(t, srv)
	client := srv.Client()
	first := p.Sections[0].ID
	second := p.Sections[1].ID

	var created []TaskResponse
	for _, title := range []string{"alpha", "beta", "gamma"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/tasks", map[string]any{
			"title":      title,
			"section_id": first,
		}, nil)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s status %d: %s", title, res.StatusCode, string(data))
		}
		var task TaskResponse
		if err := json.Unmarshal(data, &task); err != nil {
			t.Fatalf("unmarshal task: %v", err)
		}
		created = append(created, task)
	}

	// gamma to the front of its section
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+created[2].ID+"/move", map[string]any{
		"section_id": first,
		"index":      0,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("move status %d: %s", res.StatusCode, string(data))
	}
	var ordered []TaskResponse
	if err := json.Unmarshal(data, &ordered); err != nil {
		t.Fatalf("unmarshal ordered: %v", err)
	}
	if len(ordered) != 3 || ordered[0].Title != "gamma" || ordered[1].Title != "alpha" {
		t.Fatalf("unexpected order: %s", string(data))
	}

	// alpha across sections
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+created[0].ID+"/move", map[string]any{
		"section_id": second,
		"index":      0,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cross move status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/sections/"+second+"/tasks", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("section tasks status %d: %s", res.StatusCode, string(data))
	}
	var secTasks []TaskResponse
	_ = json.Unmarshal(data, &secTasks)
	if len(secTasks) != 1 || secTasks[0].Title != "alpha" {
		t.Fatalf("expected alpha in second section: %s", string(data))
	}
}

func TestProjectTasksOrderedBySections(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createTestProject(t, srv)
	client := srv.Client()

	for i, spec := range []struct{ title, section string }{
		{"in first", p.Sections[0].ID},
		{"in second", p.Sections[1].ID},
		{"also first", p.Sections[0].ID},
	} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/tasks", map[string]any{
			"title":      spec.title,
			"section_id": spec.section,
		}, nil)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %d status %d: %s", i, res.StatusCode, string(data))
		}
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+p.ID+"/tasks", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var tasks []TaskResponse
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"in first", "also first", "in second"}
	if len(tasks) != len(want) {
		t.Fatalf("got %d tasks: %s", len(tasks), string(data))
	}
	for i := range want {
		if tasks[i].Title != want[i] {
			t.Fatalf("order = %v, want %v", tasks, want)
		}
	}
}

func TestCompleteReopenRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createTestProject(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/tasks", map[string]any{
		"title": "finish me",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	_ = json.Unmarshal(data, &task)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/complete", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var done TaskResponse
	_ = json.Unmarshal(data, &done)
	if !done.Completed || done.CompletedAt == nil {
		t.Fatalf("not completed: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/reopen", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reopen status %d: %s", res.StatusCode, string(data))
	}
	var reopened TaskResponse
	_ = json.Unmarshal(data, &reopened)
	if reopened.Completed || reopened.CompletedAt != nil {
		t.Fatalf("still completed: %s", string(data))
	}
}

func TestRetiredProjectOrderEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createTestProject(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/"+p.ID+"/order", nil, nil)
	if res.StatusCode != http.StatusGone {
		t.Fatalf("expected 410, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "gone" {
		t.Fatalf("code = %q, want gone", envelope.Error.Code)
	}
}

func TestUnknownTaskIs404(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createTestProject(t, srv)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/missing", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/projects", nil)
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	// health stays open
	res2, err := srv.Client().Get(srv.URL + "/v1/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res2.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/apikeys", map[string]any{"name": "ci"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatal("raw key not returned")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/projects", nil)
	req.Header.Set("X-Api-Key", key.Key)
	res2, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("api key auth status %d", res2.StatusCode)
	}
}
