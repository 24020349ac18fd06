package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kalambet/vnhook/internal/settings"
)

func TestWriteRuntimeArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	w := NewWriter(dir)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	s := settings.Default()
	s.Language = settings.English
	s.QuickTelex = true
	s.SwitchKey = settings.Hotkey{Alt: true, Key: "z"}
	s.ExcludedApps = []string{"com.apple.Terminal"}
	s.Macros = []settings.Macro{{Abbrev: "vn", Text: "Việt Nam"}}

	if err := w.Write(s); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rc, err := w.ReadRuntime()
	if err != nil {
		t.Fatalf("ReadRuntime: %v", err)
	}
	if rc.Version != FormatVersion {
		t.Errorf("Version = %d", rc.Version)
	}
	if !rc.GeneratedAt.Equal(fixed) {
		t.Errorf("GeneratedAt = %v, want %v", rc.GeneratedAt, fixed)
	}
	if rc.Language != settings.English {
		t.Errorf("Language = %v", rc.Language)
	}
	if !rc.Features.QuickTelex {
		t.Error("QuickTelex not carried")
	}
	if rc.SwitchKey != s.SwitchKey {
		t.Errorf("SwitchKey = %v, want %v", rc.SwitchKey, s.SwitchKey)
	}
	if len(rc.ExcludedApps) != 1 || rc.ExcludedApps[0] != "com.apple.Terminal" {
		t.Errorf("ExcludedApps = %v", rc.ExcludedApps)
	}
	if len(rc.Macros) != 0 {
		t.Errorf("macros shipped while macro expansion disabled: %v", rc.Macros)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != RuntimeFile {
		t.Errorf("runtime dir has leftover files: %v", entries)
	}
}

func TestBuildIncludesMacrosWhenEnabled(t *testing.T) {
	s := settings.Default()
	s.UseMacro = true
	s.Macros = []settings.Macro{{Abbrev: "hn", Text: "Hà Nội"}}
	rc := Build(s, time.Now())
	if len(rc.Macros) != 1 || rc.Macros[0].Abbrev != "hn" {
		t.Errorf("Macros = %v", rc.Macros)
	}
}

func TestReadStatus(t *testing.T) {
	w := NewWriter(t.TempDir())

	if _, ok, err := w.ReadStatus(); ok || err != nil {
		t.Fatalf("missing status: ok=%v err=%v, want no data", ok, err)
	}

	want := Status{Language: settings.English, PID: 4242, UpdatedAt: time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)}
	if err := w.WriteStatus(want); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
	got, ok, err := w.ReadStatus()
	if err != nil || !ok {
		t.Fatalf("ReadStatus: ok=%v err=%v", ok, err)
	}
	if got.Language != want.Language || got.PID != want.PID || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if err := w.ClearStatus(); err != nil {
		t.Fatalf("ClearStatus: %v", err)
	}
	if _, ok, _ := w.ReadStatus(); ok {
		t.Error("status still present after clear")
	}
	if err := w.ClearStatus(); err != nil {
		t.Errorf("second ClearStatus: %v", err)
	}
}

func TestReadStatusCorrupt(t *testing.T) {
	w := NewWriter(t.TempDir())
	if err := os.WriteFile(w.StatusPath(), []byte(`{"language": "klingon"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := w.ReadStatus(); ok || err == nil {
		t.Errorf("ok=%v err=%v, want parse error", ok, err)
	}
}

func TestStatusWatcherNotifies(t *testing.T) {
	w := NewWriter(t.TempDir())
	changed := make(chan struct{}, 8)
	sw, err := NewStatusWatcher(w, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewStatusWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		sw.Run(ctx)
	}()

	// Unrelated files are ignored.
	if err := w.Write(settings.Default()); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteStatus(Status{Language: settings.Vietnamese, PID: 1}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no notification for status write")
	}

	cancel()
	<-done
}
