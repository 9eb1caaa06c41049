package quietfocus

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	store := NewStore(cfg)

	w, err := WatchConfig(path, store, slog.Default())
	if err != nil {
		t.Fatalf("WatchConfig() error: %v", err)
	}
	defer w.Close()

	// External edit: rename-replace, the same way SaveConfig writes.
	edited := DefaultConfig()
	edited.MutingEnabled = false
	edited.ExcludedApps = []string{"spotify.exe"}
	if err := SaveConfig(path, edited); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	waitFor(t, "config reload", func() bool {
		return !store.MutingEnabled() && store.Snapshot().IsExcluded("spotify.exe")
	})
}

func TestConfigWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	store := NewStore(cfg)

	w, err := WatchConfig(path, store, slog.Default())
	if err != nil {
		t.Fatalf("WatchConfig() error: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{"muting_enabled":false}`), 0o644); err != nil {
		t.Fatal(err)
	}

	// Unrelated writes never reach the store. There is no positive event
	// to wait on, so probe that the state is still the default after the
	// debounce window would have fired.
	deadlineProbe(t, func() bool { return store.MutingEnabled() })
}

// deadlineProbe asserts cond keeps holding for a bit longer than the
// watcher's debounce window.
func deadlineProbe(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(watchDebounce + 300*time.Millisecond)
	for time.Now().Before(deadline) {
		if !cond() {
			t.Fatal("condition violated")
		}
		time.Sleep(25 * time.Millisecond)
	}
}
