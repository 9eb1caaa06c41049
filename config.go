package quietfocus

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/quietfocus/quietfocus/internal/procid"
)

const (
	// minPollInterval and maxPollInterval bound the tick loop interval.
	// Values outside the range are clamped, not rejected: the interval is
	// a tuning knob, never a reason to refuse to run.
	minPollInterval = 100 * time.Millisecond
	maxPollInterval = 2000 * time.Millisecond

	// defaultRefreshInterval is how long a tick may reuse cached session
	// data before forcing a full enumeration.
	defaultRefreshInterval = 2 * time.Second

	// defaultStalenessThreshold is how long an unobserved process stays
	// in the tracked state map before eviction.
	defaultStalenessThreshold = 30 * time.Second
)

// Config holds the engine configuration. The JSON-tagged fields are
// persisted; the rest are runtime tuning supplied by the embedding
// application.
type Config struct {
	// MutingEnabled toggles the whole muting behavior. When false the
	// engine unmutes everything it muted within one tick.
	MutingEnabled bool `json:"muting_enabled"`

	// ExcludedApps lists executable names that are never muted.
	// Matching is case-insensitive.
	ExcludedApps []string `json:"excluded_apps"`

	// AlwaysMutedApps lists executable names muted unconditionally,
	// foreground or not.
	AlwaysMutedApps []string `json:"always_muted_apps"`

	// PollIntervalMS is the tick loop sleep in milliseconds, clamped to
	// [100, 2000].
	PollIntervalMS uint64 `json:"poll_interval_ms"`

	// StartWithOS requests launching the daemon at login.
	StartWithOS bool `json:"start_with_windows"`

	// RefreshInterval overrides the session re-enumeration interval.
	// Zero means the default (2s).
	RefreshInterval time.Duration `json:"-"`

	// StalenessThreshold overrides how long unobserved processes are
	// tracked before eviction. Zero means the default (30s).
	StalenessThreshold time.Duration `json:"-"`

	// Logger receives engine diagnostics. Nil means slog.Default().
	Logger *slog.Logger `json:"-"`

	// path is where the Store persists mutations; set by LoadConfig.
	// Empty disables persistence.
	path string
}

// DefaultConfig returns a configuration with muting enabled and no
// exclusions.
func DefaultConfig() *Config {
	return &Config{
		MutingEnabled:  true,
		PollIntervalMS: 500,
	}
}

// Validate checks the configuration for values that cannot be clamped
// or defaulted away.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config must not be nil", ErrConfigInvalid)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("%w: RefreshInterval must not be negative", ErrConfigInvalid)
	}
	if c.StalenessThreshold < 0 {
		return fmt.Errorf("%w: StalenessThreshold must not be negative", ErrConfigInvalid)
	}
	for _, name := range append(append([]string{}, c.ExcludedApps...), c.AlwaysMutedApps...) {
		if procid.Normalize(name) == "" {
			return fmt.Errorf("%w: app names must not be empty", ErrConfigInvalid)
		}
	}
	return nil
}

// clampPollInterval converts a millisecond setting to a bounded duration.
func clampPollInterval(ms uint64) time.Duration {
	d := time.Duration(ms) * time.Millisecond
	if d < minPollInterval {
		return minPollInterval
	}
	if d > maxPollInterval {
		return maxPollInterval
	}
	return d
}

// Policy is an immutable snapshot of the muting policy, taken once per
// tick so a concurrent settings change cannot tear a single decision.
type Policy struct {
	MutingEnabled bool
	Excluded      map[string]struct{}
	AlwaysMuted   map[string]struct{}
	PollInterval  time.Duration
}

// IsExcluded reports whether the executable name is excluded from muting.
func (p Policy) IsExcluded(name string) bool {
	_, ok := p.Excluded[procid.Normalize(name)]
	return ok
}

// IsAlwaysMuted reports whether the executable name is muted unconditionally.
func (p Policy) IsAlwaysMuted(name string) bool {
	_, ok := p.AlwaysMuted[procid.Normalize(name)]
	return ok
}

// Store is the shared, mutable policy. The UI-facing side mutates it;
// the engine snapshots it at the top of every tick. Mutations persist
// best-effort when the config was loaded from disk.
type Store struct {
	mu          sync.RWMutex
	cfg         Config
	excluded    map[string]struct{}
	alwaysMuted map[string]struct{}
	logger      *slog.Logger
}

// NewStore builds a policy store from a validated configuration.
// The config is copied; the caller's value is never aliased.
func NewStore(cfg *Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{logger: logger}
	s.replaceLocked(cfg)
	return s
}

// replaceLocked installs cfg. Caller must hold s.mu (or own s exclusively).
func (s *Store) replaceLocked(cfg *Config) {
	s.cfg = *cfg
	s.cfg.ExcludedApps = normalizeNames(cfg.ExcludedApps)
	s.cfg.AlwaysMutedApps = normalizeNames(cfg.AlwaysMutedApps)
	s.excluded = nameSet(s.cfg.ExcludedApps)
	s.alwaysMuted = nameSet(s.cfg.AlwaysMutedApps)
}

// Replace swaps in a new configuration, e.g. after a config file reload.
// Runtime-only fields (logger, tuning intervals, path) are preserved.
func (s *Store) Replace(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := *cfg
	merged.Logger = s.cfg.Logger
	merged.RefreshInterval = s.cfg.RefreshInterval
	merged.StalenessThreshold = s.cfg.StalenessThreshold
	merged.path = s.cfg.path
	s.replaceLocked(&merged)
	return nil
}

// Snapshot returns the policy as one consistent value. The returned maps
// are copies; callers may hold them across the whole tick.
func (s *Store) Snapshot() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Policy{
		MutingEnabled: s.cfg.MutingEnabled,
		Excluded:      copySet(s.excluded),
		AlwaysMuted:   copySet(s.alwaysMuted),
		PollInterval:  clampPollInterval(s.cfg.PollIntervalMS),
	}
}

// PollInterval returns the clamped tick loop interval.
func (s *Store) PollInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clampPollInterval(s.cfg.PollIntervalMS)
}

// SetPollInterval updates the tick loop interval in milliseconds.
// Takes effect within one loop cycle.
func (s *Store) SetPollInterval(ms uint64) {
	s.mu.Lock()
	s.cfg.PollIntervalMS = ms
	s.mu.Unlock()
	s.save()
}

// MutingEnabled reports whether muting is currently enabled.
func (s *Store) MutingEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.MutingEnabled
}

// SetMutingEnabled toggles muting. Disabling causes the engine to unmute
// everything it muted on the next tick.
func (s *Store) SetMutingEnabled(enabled bool) {
	s.mu.Lock()
	s.cfg.MutingEnabled = enabled
	s.mu.Unlock()
	s.save()
}

// ToggleMuting flips the muting flag and returns the new value.
func (s *Store) ToggleMuting() bool {
	s.mu.Lock()
	s.cfg.MutingEnabled = !s.cfg.MutingEnabled
	enabled := s.cfg.MutingEnabled
	s.mu.Unlock()
	s.save()
	return enabled
}

// AddExcluded adds an executable name to the exclusion list.
func (s *Store) AddExcluded(name string) {
	s.mutateSet(&s.cfg.ExcludedApps, func() map[string]struct{} { return s.excluded }, name, true)
}

// RemoveExcluded removes an executable name from the exclusion list.
func (s *Store) RemoveExcluded(name string) {
	s.mutateSet(&s.cfg.ExcludedApps, func() map[string]struct{} { return s.excluded }, name, false)
}

// AddAlwaysMuted adds an executable name to the always-muted list.
func (s *Store) AddAlwaysMuted(name string) {
	s.mutateSet(&s.cfg.AlwaysMutedApps, func() map[string]struct{} { return s.alwaysMuted }, name, true)
}

// RemoveAlwaysMuted removes an executable name from the always-muted list.
func (s *Store) RemoveAlwaysMuted(name string) {
	s.mutateSet(&s.cfg.AlwaysMutedApps, func() map[string]struct{} { return s.alwaysMuted }, name, false)
}

func (s *Store) mutateSet(slice *[]string, set func() map[string]struct{}, name string, add bool) {
	n := procid.Normalize(name)
	if n == "" {
		return
	}
	s.mu.Lock()
	m := set()
	_, present := m[n]
	if add && !present {
		m[n] = struct{}{}
		*slice = append(*slice, n)
		sort.Strings(*slice)
	} else if !add && present {
		delete(m, n)
		out := (*slice)[:0]
		for _, v := range *slice {
			if v != n {
				out = append(out, v)
			}
		}
		*slice = out
	}
	changed := present != add
	s.mu.Unlock()
	if changed {
		s.save()
	}
}

// Excluded returns the sorted exclusion list.
func (s *Store) Excluded() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cfg.ExcludedApps...)
}

// AlwaysMuted returns the sorted always-muted list.
func (s *Store) AlwaysMuted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cfg.AlwaysMutedApps...)
}

// StartWithOS reports whether autostart at login is requested.
func (s *Store) StartWithOS() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.StartWithOS
}

// SetStartWithOS records the autostart preference. Applying it to the OS
// is the daemon's job.
func (s *Store) SetStartWithOS(enabled bool) {
	s.mu.Lock()
	s.cfg.StartWithOS = enabled
	s.mu.Unlock()
	s.save()
}

// ConfigCopy returns a copy of the current persisted configuration.
func (s *Store) ConfigCopy() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.ExcludedApps = append([]string(nil), s.cfg.ExcludedApps...)
	cfg.AlwaysMutedApps = append([]string(nil), s.cfg.AlwaysMutedApps...)
	return cfg
}

// refreshInterval returns the effective session refresh interval.
func (s *Store) refreshInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg.RefreshInterval > 0 {
		return s.cfg.RefreshInterval
	}
	return defaultRefreshInterval
}

// stalenessThreshold returns the effective eviction threshold.
func (s *Store) stalenessThreshold() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg.StalenessThreshold > 0 {
		return s.cfg.StalenessThreshold
	}
	return defaultStalenessThreshold
}

// save persists the config best-effort. Failures are logged, never fatal:
// the engine keeps running on the in-memory policy.
func (s *Store) save() {
	s.mu.RLock()
	path := s.cfg.path
	cfg := s.cfg
	cfg.ExcludedApps = append([]string(nil), s.cfg.ExcludedApps...)
	cfg.AlwaysMutedApps = append([]string(nil), s.cfg.AlwaysMutedApps...)
	s.mu.RUnlock()
	if path == "" {
		return
	}
	if err := SaveConfig(path, &cfg); err != nil {
		s.logger.Warn("config save failed", "path", path, "err", err)
	}
}

func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		nn := procid.Normalize(n)
		if nn == "" {
			continue
		}
		if _, dup := seen[nn]; dup {
			continue
		}
		seen[nn] = struct{}{}
		out = append(out, nn)
	}
	sort.Strings(out)
	return out
}

func nameSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

func copySet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
