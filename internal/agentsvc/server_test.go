package agentsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spuff/spuff/pkg/agentapi"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	s, err := NewServer(Config{
		Token:               "test-token",
		Version:             "0.0.0-test",
		ProjectJSONPath:     filepath.Join(dir, "project.json"),
		ProjectStatusPath:   filepath.Join(dir, "status.json"),
		BootstrapStatusPath: filepath.Join(dir, "bootstrap.status"),
		ScriptLogDir:        filepath.Join(dir, "scripts"),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func TestHealthIsUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusRequiresToken(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestStatusWithValidTokenTouchesActivity(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(agentapi.AgentTokenHeader, "test-token")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp agentapi.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if resp.BootstrapStatus != agentapi.BootstrapUnknown {
		t.Errorf("expected unknown bootstrap status with no status file, got %q", resp.BootstrapStatus)
	}

	entries := s.activity.entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 activity entry after one authenticated call, got %d", len(entries))
	}
}

func TestHeartbeatDoesNotDoubleCountActivityLabel(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/heartbeat", nil)
	req.Header.Set(agentapi.AgentTokenHeader, "test-token")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	entries := s.activity.entries()
	if len(entries) != 1 || entries[0].Action != "heartbeat" {
		t.Fatalf("expected a single 'heartbeat' activity entry, got %+v", entries)
	}
}

func TestLogsRejectsPathEscape(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/logs?file=../../etc/passwd", nil)
	req.Header.Set(agentapi.AgentTokenHeader, "test-token")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for path escape, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProjectSetupIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	s.mu.Lock()
	s.projectSpec = &agentapi.ProjectSpec{Name: "demo"}
	s.mu.Unlock()

	first := s.setup.Start(context.Background(), s.projectSpecCopy())
	second := s.setup.Start(context.Background(), s.projectSpecCopy())

	if !first {
		t.Error("expected first Start call to report newly started")
	}
	if second {
		t.Error("expected second Start call to report already running")
	}
}
