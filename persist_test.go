package quietfocus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quietfocus", "config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if !cfg.MutingEnabled || cfg.PollIntervalMS != 500 {
		t.Errorf("missing file should yield defaults, got %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("defaults were not written back: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.MutingEnabled = false
	cfg.ExcludedApps = []string{"spotify.exe"}
	cfg.AlwaysMutedApps = []string{"noisy.exe"}
	cfg.PollIntervalMS = 750
	cfg.StartWithOS = true
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got.MutingEnabled != cfg.MutingEnabled ||
		got.PollIntervalMS != cfg.PollIntervalMS ||
		got.StartWithOS != cfg.StartWithOS {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if len(got.ExcludedApps) != 1 || got.ExcludedApps[0] != "spotify.exe" {
		t.Errorf("ExcludedApps = %v", got.ExcludedApps)
	}
	if len(got.AlwaysMutedApps) != 1 || got.AlwaysMutedApps[0] != "noisy.exe" {
		t.Errorf("AlwaysMutedApps = %v", got.AlwaysMutedApps)
	}
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"excluded_apps":["a.exe"],"muting_enabled":true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.PollIntervalMS != 500 {
		t.Errorf("PollIntervalMS = %d, want default 500", cfg.PollIntervalMS)
	}
	if len(cfg.ExcludedApps) != 1 || cfg.ExcludedApps[0] != "a.exe" {
		t.Errorf("ExcludedApps = %v", cfg.ExcludedApps)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("LoadConfig(malformed) = %v, want ErrConfigInvalid", err)
	}
}

func TestStorePersistsMutations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	s := NewStore(cfg)

	s.AddExcluded("spotify.exe")
	s.SetMutingEnabled(false)

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if reloaded.MutingEnabled {
		t.Error("muting flag not persisted")
	}
	if len(reloaded.ExcludedApps) != 1 || reloaded.ExcludedApps[0] != "spotify.exe" {
		t.Errorf("exclusion not persisted: %v", reloaded.ExcludedApps)
	}
}
