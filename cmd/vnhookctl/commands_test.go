package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/vnhook/internal/artifact"
	"github.com/kalambet/vnhook/internal/settings"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func init() {
	noColor = true
}

func TestStatusCommand_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /status": `{"daemon":"running","message":"Daemon is running","restart_pending":false,"save_pending":true}`,
	})

	if err := showStatus(ctx, ts.client()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Path != "/status" {
		t.Errorf("requests = %+v", ts.requests)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	if err := showStatus(ctx, ts.client()); err != nil {
		t.Errorf("stopped controller should not be an error, got %v", err)
	}
}

func TestStatusCommand_BadDaemonState(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /status": `{"daemon":"exploded"}`,
	})

	if err := showStatus(ctx, ts.client()); err == nil {
		t.Fatal("expected error for unknown daemon state")
	}
}

func TestSettingsShow(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /settings": `{"codeTable":"telex","spellCheck":true}`,
	})

	var out bytes.Buffer
	if err := showSettings(ctx, ts.client(), &out, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), `"codeTable": "telex"`) {
		t.Errorf("output = %q, want indented settings", out.String())
	}
}

func TestSettingsShow_SingleKey(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /settings": `{"codeTable":"telex","spellCheck":true}`,
	})

	var out bytes.Buffer
	if err := showSettings(ctx, ts.client(), &out, "spellCheck"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "true" {
		t.Errorf("output = %q, want true", got)
	}
}

func TestSettingsShow_UnknownKey(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /settings": `{}`,
	})

	var out bytes.Buffer
	if err := showSettings(ctx, ts.client(), &out, "noSuchKey"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSettingsSet(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PATCH /settings": `{"status":"updated","keys":["codeTable"]}`,
	})

	if err := setSetting(ctx, ts.client(), "codeTable", "vni"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	var sent map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sent); err != nil {
		t.Fatalf("bad request body: %v", err)
	}
	if sent["codeTable"] != "vni" {
		t.Errorf("sent = %v", sent)
	}
}

func TestSettingsSet_UnknownKeyNoRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	if err := setSetting(ctx, ts.client(), "bogus", "1"); err == nil {
		t.Fatal("expected error for unknown key")
	}
	if len(ts.requests) != 0 {
		t.Errorf("unknown key reached the server")
	}
}

func TestSettingsSet_ServerError(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid value for \"codeTable\"","type":"invalid_request_error"}}`))
	})

	err := setSetting(ctx, ts.client(), "codeTable", "klingon")
	if err == nil || !strings.Contains(err.Error(), "invalid value") {
		t.Errorf("err = %v, want server message", err)
	}
}

func TestSettingsImport(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /settings/import": `{"status":"imported","changed":2}`,
	})

	path := filepath.Join(t.TempDir(), "my backup.json")
	backup := `{"version":1,"settings":{"codeTable":"vni"}}`
	if err := os.WriteFile(path, []byte(backup), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := importSettings(ctx, ts.client(), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := ts.requests[0]
	if r.Path != "/settings/import?source=my+backup.json" {
		t.Errorf("path = %q", r.Path)
	}
	if r.Body != backup {
		t.Errorf("body = %q, want file contents verbatim", r.Body)
	}
}

func TestSettingsImport_MissingFile(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	if err := importSettings(ctx, ts.client(), filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(ts.requests) != 0 {
		t.Errorf("request sent for a missing file")
	}
}

func TestSettingsExport_ToFile(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /settings/export": `{"version":1,"settings":{"codeTable":"telex"}}`,
	})

	path := filepath.Join(t.TempDir(), "out.json")
	if err := exportSettings(ctx, ts.client(), nil, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) || !strings.Contains(string(data), `"codeTable": "telex"`) {
		t.Errorf("exported file = %q", data)
	}
}

func TestSettingsExport_Stdout(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /settings/export": `{"version":1}`,
	})

	var out bytes.Buffer
	if err := exportSettings(ctx, ts.client(), &out, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), `"version": 1`) {
		t.Errorf("output = %q", out.String())
	}
}

func TestListImports(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /settings/imports": `[{"id":"a","created_at":"2026-01-01T00:00:00Z","source":"old.json","field_count":0,"status":"rejected","error":"corrupt backup"}]`,
	})

	var out bytes.Buffer
	if err := listImports(ctx, ts.client(), &out, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Path != "/settings/imports?limit=5" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
	for _, want := range []string{"rejected", "old.json", "corrupt backup"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q: %q", want, out.String())
		}
	}
}

func TestDaemonOp(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /daemon/restart": `{"ok":true,"message":"restarted"}`,
	})

	if err := runDaemonOp(ctx, ts.client(), "restart"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r := ts.requests[0]; r.Method != "POST" || r.Path != "/daemon/restart" {
		t.Errorf("request = %+v", r)
	}
}

func TestDaemonOp_Failed(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /daemon/start": `{"ok":false,"message":"daemon executable not found: vnhookd"}`,
	})

	err := runDaemonOp(ctx, ts.client(), "start")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want failure message", err)
	}
}

func TestDaemonEvents(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /daemon/events": `[{"id":"0123456789abcdef","created_at":"2026-01-01T00:00:00Z","kind":"recover","ok":false,"message":"exited"}]`,
	})

	var out bytes.Buffer
	if err := listDaemonEvents(ctx, ts.client(), &out, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "01234567") || strings.Contains(got, "0123456789abcdef") {
		t.Errorf("event id not shortened: %q", got)
	}
	if !strings.Contains(got, "failed") || !strings.Contains(got, "recover") {
		t.Errorf("output = %q", got)
	}
}

func TestDaemonEvents_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /daemon/events": `[]`,
	})

	var out bytes.Buffer
	if err := listDaemonEvents(ctx, ts.client(), &out, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "No daemon events") {
		t.Errorf("output = %q", out.String())
	}
}

func TestPrintEffects(t *testing.T) {
	var out bytes.Buffer
	if err := printEffects(&out); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(settings.AllProperties()) {
		t.Errorf("lines = %d, want one per property (%d)", len(lines), len(settings.AllProperties()))
	}
	if !strings.Contains(out.String(), settings.PropSwitchKey.Key()) {
		t.Errorf("switch key missing from %q", out.String())
	}
}

func TestShowRuntime(t *testing.T) {
	files := artifact.NewWriter(t.TempDir())
	st := settings.Default()
	st.SwitchKey = settings.Hotkey{Alt: true, Key: "z"}
	if err := files.Write(st); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := showRuntime(&out, files); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), `"switchKey"`) || !strings.Contains(out.String(), `"codeTable"`) {
		t.Errorf("output = %q", out.String())
	}
}

func TestShowRuntime_Missing(t *testing.T) {
	files := artifact.NewWriter(t.TempDir())

	var out bytes.Buffer
	err := showRuntime(&out, files)
	if err == nil || !strings.Contains(err.Error(), "no runtime config") {
		t.Errorf("err = %v, want missing runtime config", err)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	resp, err := ts.client().get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q", ts.requests[0].Auth)
	}
}

func TestNoColor(t *testing.T) {
	if got := colorize(styleSuccess, "test message"); got != "test message" {
		t.Errorf("colorize with noColor = %q, want plain text", got)
	}
}
