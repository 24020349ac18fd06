package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/vnhook/internal/controller"
	"github.com/kalambet/vnhook/internal/daemon"
	"github.com/kalambet/vnhook/internal/settings"
	"github.com/kalambet/vnhook/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SettingsService is the goroutine-safe controller surface the API drives.
type SettingsService interface {
	Status(ctx context.Context) (controller.Status, error)
	Settings(ctx context.Context) (settings.State, error)
	Set(ctx context.Context, key string, value any) error
	Import(ctx context.Context, data []byte, source string) (int, error)
	Export(ctx context.Context) ([]byte, error)
	StartDaemon(ctx context.Context) (daemon.Result, error)
	StopDaemon(ctx context.Context) (daemon.Result, error)
	RestartDaemon(ctx context.Context) (daemon.Result, error)
}

// History reads the daemon and import journal.
type History interface {
	RecentDaemonEvents(limit int) ([]storage.DaemonEvent, error)
	GetDaemonEvent(id string) (storage.DaemonEvent, error)
	RecentImports(limit int) ([]storage.ImportRecord, error)
}

type AppDeps struct {
	Service SettingsService
	History History // optional; if nil, history endpoints return 404
	Token   string
}

// NewAppHandler returns the control API. /health is open; everything else
// requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/status", handleStatus(deps))
		r.Get("/settings", handleGetSettings(deps))
		r.Patch("/settings", handlePatchSettings(deps))
		r.Get("/settings/export", handleExport(deps))
		r.Post("/settings/import", handleImport(deps))
		r.Post("/daemon/{op}", handleDaemonOp(deps))

		if deps.History != nil {
			r.Get("/daemon/events", handleListEvents(deps))
			r.Get("/daemon/events/{id}", handleGetEvent(deps))
			r.Get("/settings/imports", handleListImports(deps))
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Service.Status(r.Context())
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "failed to get status: %v", err)
			return
		}
		writeJSON(w, st)
	}
}

// SettingsView renders the persisted settings as a key/value object, keyed
// like settings.json.
func SettingsView(s settings.State) map[string]any {
	out := make(map[string]any)
	for _, p := range settings.AllProperties() {
		if p.Transient() {
			continue
		}
		out[p.Key()] = settings.Value(&s, p)
	}
	return out
}

func handleGetSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Service.Settings(r.Context())
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "failed to get settings: %v", err)
			return
		}
		writeJSON(w, SettingsView(s))
	}
}

func handlePatchSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var fields map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(fields) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no settings given")
			return
		}

		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		for _, key := range keys {
			err := deps.Service.Set(r.Context(), key, patchValue(fields[key]))
			switch {
			case errors.Is(err, settings.ErrUnknownKey):
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown setting %q", key)
				return
			case errors.Is(err, controller.ErrLoopStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				httpError(w, http.StatusServiceUnavailable, "api_error", "failed to set %q: %v", key, err)
				return
			case err != nil:
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid value for %q: %v", key, err)
				return
			}
		}

		writeJSON(w, map[string]any{"status": "updated", "keys": keys})
	}
}

// patchValue treats a JSON string as typed text, so "false" and "vni" both
// work for the fields they fit. Other JSON values are decoded as-is.
func patchValue(raw json.RawMessage) any {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return settings.ValueText(text)
	}
	return raw
}

func handleExport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := deps.Service.Export(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to export settings: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func handleImport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		data, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read body: %v", err)
			return
		}
		source := r.URL.Query().Get("source")
		if source == "" {
			source = "api"
		}

		n, err := deps.Service.Import(r.Context(), data, source)
		if errors.Is(err, settings.ErrCorruptBackup) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to import settings: %v", err)
			return
		}
		writeJSON(w, map[string]any{"status": "imported", "changed": n})
	}
}

func handleDaemonOp(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var op func(context.Context) (daemon.Result, error)
		switch name := chi.URLParam(r, "op"); name {
		case "start":
			op = deps.Service.StartDaemon
		case "stop":
			op = deps.Service.StopDaemon
		case "restart":
			op = deps.Service.RestartDaemon
		default:
			httpError(w, http.StatusNotFound, "not_found", "unknown daemon operation %q", name)
			return
		}

		res, err := op(r.Context())
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "daemon operation failed: %v", err)
			return
		}
		writeJSON(w, res)
	}
}

func handleListEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 200)
		events, err := deps.History.RecentDaemonEvents(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list daemon events: %v", err)
			return
		}
		if events == nil {
			events = []storage.DaemonEvent{}
		}
		writeJSON(w, events)
	}
}

func handleGetEvent(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ev, err := deps.History.GetDaemonEvent(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "daemon event not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get daemon event: %v", err)
			return
		}
		writeJSON(w, ev)
	}
}

func handleListImports(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 200)
		records, err := deps.History.RecentImports(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list imports: %v", err)
			return
		}
		if records == nil {
			records = []storage.ImportRecord{}
		}
		writeJSON(w, records)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
