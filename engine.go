package quietfocus

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/quietfocus/quietfocus/platform"
)

// detectAudioFn is the function used to detect the audio backend.
// It defaults to platform.Detect and can be overridden in tests.
var detectAudioFn = platform.Detect

// AppAudioState is the engine's per-process view of one audio-producing
// application, reported to presentation layers.
type AppAudioState struct {
	PID         uint32 `json:"pid"`
	ProcessName string `json:"process_name"`
	DisplayName string `json:"display_name"`

	// MutedByUs distinguishes "the engine silenced this" from "it was
	// already muted by the user or the OS". Intent is never inferred from
	// the raw OS mute flag alone.
	MutedByUs bool `json:"is_muted_by_us"`

	// OriginalMuteState is the OS mute flag when the process was first seen.
	OriginalMuteState bool `json:"original_mute_state"`

	LastSeen time.Time `json:"last_seen"`
	Active   bool      `json:"is_active"`
}

// TickResult summarizes one reconciliation pass.
type TickResult struct {
	ForegroundPID     uint32 `json:"foreground_pid"`
	ForegroundKnown   bool   `json:"foreground_known"`
	ForegroundChanged bool   `json:"foreground_changed"`
	ActiveSessions    int    `json:"active_sessions"`
	MutedCount        int    `json:"muted_count"`
	Refreshed         bool   `json:"refreshed"`
}

// Engine is the reconciliation core. On each tick it merges fresh or
// cached session data with the foreground pid and the policy, computes
// the minimal set of mute/unmute actions, and applies them through the
// session cache.
//
// All methods are safe for concurrent use; ticks and UI reads serialize
// on one mutex.
type Engine struct {
	mu     sync.Mutex
	closed bool

	audio   platform.Audio
	cache   *Cache
	tracker *ForegroundTracker
	store   *Store
	logger  *slog.Logger

	ownPID      uint32
	states      map[uint32]*AppAudioState
	muted       map[uint32]struct{}
	lastRefresh time.Time
	lastResult  TickResult

	now func() time.Time
}

// NewEngine creates the engine for the given configuration, using the
// audio backend detected for the current operating system. It fails
// with ErrAudioUnavailable when the audio subsystem cannot be reached:
// the application has no purpose without it.
func NewEngine(cfg *Config) (*Engine, error) {
	return NewEngineWithAudio(cfg, detectAudioFn())
}

// NewEngineWithAudio creates the engine on an explicit audio backend.
func NewEngineWithAudio(cfg *Config, audio platform.Audio) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config must not be nil", ErrConfigInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if !audio.Available() {
		return nil, fmt.Errorf("%w: backend %q", ErrAudioUnavailable, audio.Name())
	}

	e := &Engine{
		audio:   audio,
		cache:   newCache(audio, logger),
		tracker: newForegroundTracker(audio),
		store:   NewStore(cfg),
		logger:  logger,
		ownPID:  uint32(os.Getpid()),
		states:  make(map[uint32]*AppAudioState),
		muted:   make(map[uint32]struct{}),
		now:     time.Now,
	}
	return e, nil
}

// Store returns the shared policy store. Settings surfaces mutate it;
// the engine reads it at the top of every tick.
func (e *Engine) Store() *Store { return e.store }

// Cache returns the session cache, for direct unmute-on-exclude actions.
func (e *Engine) Cache() *Cache { return e.cache }

// Tracker returns the foreground tracker.
func (e *Engine) Tracker() *ForegroundTracker { return e.tracker }

// Tick runs one reconciliation pass.
//
// A full session refresh happens when the foreground changed or the
// refresh interval elapsed; otherwise the tick works against cached
// state. Foreground switches are therefore never delayed by the
// refresh throttle, and the cheap foreground poll amortizes the
// expensive enumeration.
func (e *Engine) Tick() TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return e.lastResult
	}

	pol := e.store.Snapshot()
	now := e.now()

	_, _, changed := e.tracker.CheckChange()
	fgPID, fgKnown := e.tracker.Last()

	res := TickResult{
		ForegroundPID:     fgPID,
		ForegroundKnown:   fgKnown,
		ForegroundChanged: changed,
	}

	wantRefresh := changed || e.lastRefresh.IsZero() || now.Sub(e.lastRefresh) >= e.store.refreshInterval()

	if wantRefresh {
		sessions, err := e.cache.Refresh()
		if err != nil {
			// Transient enumeration failure: no data this tick, audio
			// stays in its last known state.
			e.logger.Warn("session refresh failed", "err", err)
		} else {
			e.lastRefresh = now
			res.Refreshed = true
			seen := make(map[uint32]struct{}, len(sessions))
			for _, s := range sessions {
				if _, dup := seen[s.PID]; dup {
					continue
				}
				seen[s.PID] = struct{}{}
				st := e.upsert(s, now)
				e.applyPolicy(st, pol, fgPID, fgKnown, s.Muted, true)
			}
			e.sweep(seen, now)
		}
	}

	if !res.Refreshed {
		// The tick has no fresh enumeration: apply the current policy
		// and any focus transition against the cached states directly,
		// so neither focus switches nor policy changes (disable,
		// exclusion) wait out the throttle or a failed refresh.
		// Note this path does not re-validate that a process is still
		// producing audio before toggling its mute state.
		for _, st := range e.states {
			if !st.Active {
				continue
			}
			osMuted, osKnown := e.cache.IsMuted(st.PID)
			e.applyPolicy(st, pol, fgPID, fgKnown, osMuted, osKnown)
		}
	}

	res.ActiveSessions = e.activeCount()
	res.MutedCount = len(e.muted)
	e.lastResult = res
	return res
}

// upsert creates or updates the tracked state for one enumerated session.
func (e *Engine) upsert(s platform.Session, now time.Time) *AppAudioState {
	st, ok := e.states[s.PID]
	if !ok {
		st = &AppAudioState{
			PID:               s.PID,
			ProcessName:       s.ProcessName,
			OriginalMuteState: s.Muted,
		}
		e.states[s.PID] = st
	}
	st.ProcessName = s.ProcessName
	st.DisplayName = s.DisplayName
	st.LastSeen = now
	st.Active = true
	return st
}

// applyPolicy decides mute/unmute for one process. Precedence: own
// process, then disabled, then exclusion, then always-mute, then
// foreground exemption, then the background default.
func (e *Engine) applyPolicy(st *AppAudioState, pol Policy, fgPID uint32, fgKnown, osMuted, osKnown bool) {
	switch {
	case st.PID == e.ownPID:
		e.ensureUnmuted(st)
	case !pol.MutingEnabled:
		e.ensureUnmuted(st)
	case pol.IsExcluded(st.ProcessName):
		e.ensureUnmuted(st)
	case pol.IsAlwaysMuted(st.ProcessName):
		e.ensureMuted(st, osMuted, osKnown)
	case fgKnown && fgPID == st.PID:
		e.ensureUnmuted(st)
	default:
		e.ensureMuted(st, osMuted, osKnown)
	}
}

// ensureMuted mutes st unless it is already muted. When the OS flag says
// the session is muted but not by us, the engine stays out: claiming a
// user-initiated mute would get it incorrectly auto-unmuted later.
func (e *Engine) ensureMuted(st *AppAudioState, osMuted, osKnown bool) {
	if st.MutedByUs {
		return
	}
	if osKnown && osMuted {
		return
	}
	acted, err := e.cache.Mute(st.PID)
	if err != nil {
		e.logger.Warn("mute failed", "pid", st.PID, "process", st.ProcessName, "err", err)
		return
	}
	if !acted {
		// Session vanished between decision and action.
		return
	}
	st.MutedByUs = true
	e.muted[st.PID] = struct{}{}
}

// ensureUnmuted reverses an engine-issued mute. The muted-by-us flag is
// cleared even when the OS call fails: availability over strict
// consistency, and a stuck flag would re-trigger unmutes forever.
func (e *Engine) ensureUnmuted(st *AppAudioState) {
	if !st.MutedByUs {
		return
	}
	if _, err := e.cache.Unmute(st.PID); err != nil {
		e.logger.Warn("unmute failed", "pid", st.PID, "process", st.ProcessName, "err", err)
	}
	st.MutedByUs = false
	delete(e.muted, st.PID)
}

// sweep handles processes absent from this tick's refresh: they are
// marked inactive, force-unmuted once if engine-muted, and evicted after
// the staleness threshold.
func (e *Engine) sweep(seen map[uint32]struct{}, now time.Time) {
	threshold := e.store.stalenessThreshold()
	for pid, st := range e.states {
		if _, ok := seen[pid]; ok {
			continue
		}
		st.Active = false
		if st.MutedByUs {
			// A process must never remain engine-muted once untracked.
			if _, err := e.cache.Unmute(pid); err != nil {
				e.logger.Warn("sweep unmute failed", "pid", pid, "err", err)
			}
			st.MutedByUs = false
			delete(e.muted, pid)
		}
		if now.Sub(st.LastSeen) > threshold {
			delete(e.states, pid)
		}
	}
}

func (e *Engine) activeCount() int {
	n := 0
	for _, st := range e.states {
		if st.Active {
			n++
		}
	}
	return n
}

// UnmuteAll unconditionally unmutes every process the engine muted and
// clears the muted-by-us flags. This is the fail-safe, called on
// shutdown and on the muting-disabled transition: the engine must never
// leave a process muted after it stops running or loses control.
func (e *Engine) UnmuteAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unmuteAllLocked()
}

func (e *Engine) unmuteAllLocked() {
	for pid := range e.muted {
		if _, err := e.cache.Unmute(pid); err != nil {
			e.logger.Warn("unmute-all failed for pid", "pid", pid, "err", err)
		}
		delete(e.muted, pid)
	}
	for _, st := range e.states {
		st.MutedByUs = false
	}
}

// ForceRefresh re-enumerates sessions immediately, outside the throttle.
func (e *Engine) ForceRefresh() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if _, err := e.cache.Refresh(); err != nil {
		return err
	}
	e.lastRefresh = e.now()
	return nil
}

// ActiveSessions returns the tracked states currently observed in the
// audio subsystem, sorted by pid.
func (e *Engine) ActiveSessions() []AppAudioState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AppAudioState, 0, len(e.states))
	for _, st := range e.states {
		if st.Active {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// States returns every tracked state, active or not, sorted by pid.
func (e *Engine) States() []AppAudioState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AppAudioState, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// MutedCount returns how many processes are currently muted by the engine.
func (e *Engine) MutedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.muted)
}

// IsMutedByUs reports whether the engine muted pid.
func (e *Engine) IsMutedByUs(pid uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.muted[pid]
	return ok
}

// LastResult returns the most recent tick summary.
func (e *Engine) LastResult() TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResult
}

// OwnPID returns the engine's own process id, which is never muted.
func (e *Engine) OwnPID() uint32 { return e.ownPID }

// Close runs the unmute-all fail-safe, releases all cached control
// handles, and shuts the backend down. Whoever owns the engine must call
// Close (directly or through Runner.Stop) before releasing it.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.unmuteAllLocked()
	e.cache.release()
	e.closed = true
	if err := e.audio.Cleanup(); err != nil {
		e.logger.Warn("audio backend cleanup failed", "err", err)
	}
	return nil
}
