package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"testing"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/config"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/db"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/migrate"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/operations"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/templates"
)

type testServer struct {
	URL     string
	Service *operations.Service
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	catalog := &templates.Catalog{}
	svc := operations.New(conn, config.Default(), catalog, log.New(io.Discard, "", 0))
	handler, err := New(Config{Service: svc, Catalog: catalog, BasePath: "/v0", Auth: auth})
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
		URL:     "http://" + ln.Addr().String(),
		Service: svc,
		client:  &http.Client{},
		close: func() {
			svc.Wait()
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
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

func TestCreateProjectRunsToCompletion(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"project_name": "Contoso Portal",
		"template":     "minimal",
		"dry_run":      true,
	}, nil)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var op OperationResponse
	if err := json.Unmarshal(data, &op); err != nil {
		t.Fatalf("unmarshal operation: %v", err)
	}
	if op.ID == "" || op.Status != "queued" || op.ProjectName != "Contoso Portal" || !op.DryRun {
		t.Fatalf("operation = %+v", op)
	}

	srv.Service.Wait()

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/operations/"+op.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var detail OperationDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if detail.Status != "completed" {
		t.Fatalf("detail = %+v", detail)
	}
	if len(detail.Phases) != 6 || detail.Phases[0].Name != "prd_processing" || detail.Phases[5].Name != "completion" {
		t.Fatalf("phases = %+v", detail.Phases)
	}
	if detail.Result["status"] != "completed" {
		t.Fatalf("result = %v", detail.Result)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/operations", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var ops []OperationResponse
	if err := json.Unmarshal(data, &ops); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(ops) != 1 || ops[0].ID != op.ID {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestCreateProjectRequiresInput(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
}

func TestCreateProjectUnknownTemplate(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"project_name": "X",
		"template":     "no-such",
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestGetOperationNotFound(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/operations/missing", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestCancelOperation(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"project_name": "Contoso Portal",
		"template":     "minimal",
	}, nil)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var op OperationResponse
	if err := json.Unmarshal(data, &op); err != nil {
		t.Fatal(err)
	}
	srv.Service.Wait()

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/operations/"+op.ID+"/cancel", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d: %s", res.StatusCode, string(data))
	}
	var canceled OperationResponse
	if err := json.Unmarshal(data, &canceled); err != nil {
		t.Fatal(err)
	}
	if !canceled.Canceled {
		t.Fatalf("operation = %+v", canceled)
	}
}

func TestOperationEvents(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"project_name": "Contoso Portal",
		"template":     "minimal",
	}, nil)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var op OperationResponse
	if err := json.Unmarshal(data, &op); err != nil {
		t.Fatal(err)
	}
	srv.Service.Wait()

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/operations/"+op.ID+"/events", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var evts []EventResponse
	if err := json.Unmarshal(data, &evts); err != nil {
		t.Fatal(err)
	}
	if len(evts) == 0 || evts[0].Type != "operation.queued" {
		t.Fatalf("events = %+v", evts)
	}
	last := evts[len(evts)-1]
	if last.Type != "operation.completed" {
		t.Fatalf("last event = %+v", last)
	}
}

func TestTemplates(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/templates", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list []TemplateSummary
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("templates = %+v", list)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/templates?category=portal", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("filter status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "customer-portal" {
		t.Fatalf("templates = %+v", list)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/templates/standard-project", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var tmpl templates.Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		t.Fatal(err)
	}
	if tmpl.Name != "standard-project" || len(tmpl.PRD.Features) == 0 {
		t.Fatalf("template = %+v", tmpl)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/templates/no-such", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status %d: %s", res.StatusCode, string(data))
	}
}

func TestValidatePRD(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/prd/validate", map[string]any{
		"prd": `{"product":{"name":"X"},"features":[{"name":"Core","userStories":["As a user, I want to view data"]}]}`,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var result struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Fatalf("result = %+v", result)
	}

	// Unparseable input is still a 200 carrying the parse failure.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/prd/validate", map[string]any{"prd": ":::"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if result.Valid || len(result.Errors) == 0 {
		t.Fatalf("result = %+v", result)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	auth := AuthConfig{APIKeys: []config.APIKeyConfig{{Name: "ci", Key: "test-key"}}}
	srv := newTestServer(t, auth)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/operations", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/operations", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/operations", nil, map[string]string{"X-Api-Key": "test-key"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}

	// Health stays open for probes.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyActorRecorded(t *testing.T) {
	auth := AuthConfig{APIKeys: []config.APIKeyConfig{{Name: "ci", Key: "test-key"}}}
	srv := newTestServer(t, auth)
	client := srv.Client()
	headers := map[string]string{"X-Api-Key": "test-key"}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"project_name": "Contoso Portal",
		"template":     "minimal",
	}, headers)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var op OperationResponse
	if err := json.Unmarshal(data, &op); err != nil {
		t.Fatal(err)
	}
	srv.Service.Wait()

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/operations/"+op.ID+"/events", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var evts []EventResponse
	if err := json.Unmarshal(data, &evts); err != nil {
		t.Fatal(err)
	}
	if evts[0].ActorID != "ci" {
		t.Fatalf("actor = %q", evts[0].ActorID)
	}
}

func TestOpenAPIAndDocs(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var spec map[string]any
	if err := json.Unmarshal(data, &spec); err != nil {
		t.Fatal(err)
	}
	if _, ok := spec["paths"]; !ok {
		t.Fatalf("spec = %v", spec)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/docs", nil, nil)
	if res.StatusCode != http.StatusOK || !bytes.Contains(data, []byte("swagger-ui")) {
		t.Fatalf("docs status %d", res.StatusCode)
	}
}
