package quietfocus

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}

	var nilCfg *Config
	if err := nilCfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("nil config: %v, want ErrConfigInvalid", err)
	}

	cfg := DefaultConfig()
	cfg.RefreshInterval = -time.Second
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("negative refresh interval: %v, want ErrConfigInvalid", err)
	}

	cfg = DefaultConfig()
	cfg.ExcludedApps = []string{"spotify.exe", "   "}
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("blank app name: %v, want ErrConfigInvalid", err)
	}
}

func TestClampPollInterval(t *testing.T) {
	tests := []struct {
		ms   uint64
		want time.Duration
	}{
		{0, 100 * time.Millisecond},
		{50, 100 * time.Millisecond},
		{100, 100 * time.Millisecond},
		{500, 500 * time.Millisecond},
		{2000, 2000 * time.Millisecond},
		{10000, 2000 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := clampPollInterval(tt.ms); got != tt.want {
			t.Errorf("clampPollInterval(%d) = %v, want %v", tt.ms, got, tt.want)
		}
	}
}

func TestStoreSnapshotIsolated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludedApps = []string{"a.exe"}
	s := NewStore(cfg)

	pol := s.Snapshot()
	s.AddExcluded("b.exe")

	if pol.IsExcluded("b.exe") {
		t.Error("snapshot observed a mutation made after it was taken")
	}
	if !s.Snapshot().IsExcluded("b.exe") {
		t.Error("new snapshot missing the mutation")
	}
}

func TestStoreCaseInsensitiveMatching(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludedApps = []string{"Spotify.EXE"}
	cfg.AlwaysMutedApps = []string{"DISCORD.exe"}
	s := NewStore(cfg)
	pol := s.Snapshot()

	if !pol.IsExcluded("spotify.exe") || !pol.IsExcluded("SPOTIFY.EXE") {
		t.Error("exclusion matching should be case-insensitive")
	}
	if !pol.IsAlwaysMuted("discord.exe") {
		t.Error("always-muted matching should be case-insensitive")
	}
	if got := s.Excluded(); len(got) != 1 || got[0] != "spotify.exe" {
		t.Errorf("Excluded() = %v, want normalized [spotify.exe]", got)
	}
}

func TestStoreSetMutations(t *testing.T) {
	s := NewStore(DefaultConfig())

	s.AddExcluded("b.exe")
	s.AddExcluded("a.exe")
	s.AddExcluded("B.EXE") // duplicate after normalization
	if got := s.Excluded(); len(got) != 2 || got[0] != "a.exe" || got[1] != "b.exe" {
		t.Errorf("Excluded() = %v, want sorted [a.exe b.exe]", got)
	}

	s.RemoveExcluded("A.exe")
	if got := s.Excluded(); len(got) != 1 || got[0] != "b.exe" {
		t.Errorf("Excluded() after remove = %v, want [b.exe]", got)
	}
	s.RemoveExcluded("missing.exe") // no-op

	s.AddAlwaysMuted("noisy.exe")
	if got := s.AlwaysMuted(); len(got) != 1 || got[0] != "noisy.exe" {
		t.Errorf("AlwaysMuted() = %v, want [noisy.exe]", got)
	}
	s.RemoveAlwaysMuted("noisy.exe")
	if got := s.AlwaysMuted(); len(got) != 0 {
		t.Errorf("AlwaysMuted() = %v, want empty", got)
	}

	s.AddExcluded("  ") // blank names ignored
	if got := s.Excluded(); len(got) != 1 {
		t.Errorf("blank name was added: %v", got)
	}
}

func TestStoreToggleMuting(t *testing.T) {
	s := NewStore(DefaultConfig())
	if !s.MutingEnabled() {
		t.Fatal("default should be enabled")
	}
	if on := s.ToggleMuting(); on {
		t.Error("ToggleMuting() = true, want false")
	}
	if s.MutingEnabled() {
		t.Error("muting should be off")
	}
	s.SetMutingEnabled(true)
	if !s.MutingEnabled() {
		t.Error("muting should be back on")
	}
}

func TestStorePollInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollIntervalMS = 5 // below the floor
	s := NewStore(cfg)
	if got := s.PollInterval(); got != 100*time.Millisecond {
		t.Errorf("PollInterval() = %v, want clamped 100ms", got)
	}
	s.SetPollInterval(250)
	if got := s.PollInterval(); got != 250*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 250ms", got)
	}
}

func TestStoreReplacePreservesRuntimeFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefreshInterval = 7 * time.Second
	cfg.StalenessThreshold = 40 * time.Second
	s := NewStore(cfg)

	incoming := DefaultConfig()
	incoming.MutingEnabled = false
	incoming.ExcludedApps = []string{"New.exe"}
	if err := s.Replace(incoming); err != nil {
		t.Fatalf("Replace() error: %v", err)
	}

	if s.MutingEnabled() {
		t.Error("Replace did not apply the persisted fields")
	}
	if !s.Snapshot().IsExcluded("new.exe") {
		t.Error("Replace did not apply the exclusion list")
	}
	if got := s.refreshInterval(); got != 7*time.Second {
		t.Errorf("refreshInterval() = %v, want preserved 7s", got)
	}
	if got := s.stalenessThreshold(); got != 40*time.Second {
		t.Errorf("stalenessThreshold() = %v, want preserved 40s", got)
	}

	bad := DefaultConfig()
	bad.ExcludedApps = []string{""}
	if err := s.Replace(bad); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("Replace(invalid) = %v, want ErrConfigInvalid", err)
	}
	if s.MutingEnabled() {
		t.Error("failed Replace must not alter the store")
	}
}

func TestStoreIntervalDefaults(t *testing.T) {
	s := NewStore(DefaultConfig())
	if got := s.refreshInterval(); got != defaultRefreshInterval {
		t.Errorf("refreshInterval() = %v, want %v", got, defaultRefreshInterval)
	}
	if got := s.stalenessThreshold(); got != defaultStalenessThreshold {
		t.Errorf("stalenessThreshold() = %v, want %v", got, defaultStalenessThreshold)
	}
}

func TestStoreConfigCopyIsolated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludedApps = []string{"a.exe"}
	s := NewStore(cfg)

	got := s.ConfigCopy()
	got.ExcludedApps[0] = "tampered"
	if s.Excluded()[0] != "a.exe" {
		t.Error("ConfigCopy aliases the store's slice")
	}
}
