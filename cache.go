package quietfocus

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/quietfocus/quietfocus/platform"
)

// Cache owns the long-lived mute-control handles, keyed by process id,
// so mute and unmute operations never re-enumerate. A single mutex
// guards the map; session enumeration, the expensive OS call, always
// happens outside it.
//
// Per-entry lifecycle: unknown → cached → (muted|unmuted) → evicted.
type Cache struct {
	mu      sync.Mutex
	audio   platform.Audio
	entries map[uint32]*cachedSession
	logger  *slog.Logger
}

// cachedSession denormalizes the process identity next to the control
// handle for fast lookup.
type cachedSession struct {
	control     platform.SessionControl
	processName string
	displayName string
}

// CachedInfo is a point-in-time view of one cache entry.
type CachedInfo struct {
	PID         uint32
	ProcessName string
	DisplayName string
}

func newCache(audio platform.Audio, logger *slog.Logger) *Cache {
	return &Cache{
		audio:   audio,
		entries: make(map[uint32]*cachedSession),
		logger:  logger,
	}
}

// Refresh enumerates the live sessions and atomically replaces the
// entry map in a single lock acquisition, so a concurrent mute call
// observes either the old cache or the new one, never a half-built mix.
// Superseded control handles are released after the swap.
func (c *Cache) Refresh() ([]platform.Session, error) {
	sessions, err := c.audio.Sessions()
	if err != nil {
		return nil, err
	}

	next := make(map[uint32]*cachedSession, len(sessions))
	for _, s := range sessions {
		if s.Control == nil {
			continue
		}
		if _, dup := next[s.PID]; dup {
			s.Control.Release()
			continue
		}
		next[s.PID] = &cachedSession{
			control:     s.Control,
			processName: s.ProcessName,
			displayName: s.DisplayName,
		}
	}

	c.mu.Lock()
	old := c.entries
	c.entries = next
	c.mu.Unlock()

	for _, e := range old {
		e.control.Release()
	}
	return sessions, nil
}

// Mute mutes the session owned by pid through its cached control.
// acted is false when pid has no cache entry: a session can legitimately
// disappear between decision and action, so that is a no-op, not an error.
func (c *Cache) Mute(pid uint32) (acted bool, err error) {
	return c.setMute(pid, true)
}

// Unmute unmutes the session owned by pid. Same no-op semantics as Mute.
func (c *Cache) Unmute(pid uint32) (acted bool, err error) {
	return c.setMute(pid, false)
}

func (c *Cache) setMute(pid uint32, mute bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[pid]
	if !ok {
		return false, nil
	}
	if err := e.control.SetMute(mute); err != nil {
		return false, err
	}
	return true, nil
}

// IsMuted reads the live OS mute flag through the cached control, not a
// stored copy: the user or another program may have changed it out-of-band.
// ok is false when pid is not cached or the read failed.
func (c *Cache) IsMuted(pid uint32) (muted, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, present := c.entries[pid]
	if !present {
		return false, false
	}
	m, err := e.control.Muted()
	if err != nil {
		c.logger.Debug("mute state read failed", "pid", pid, "err", err)
		return false, false
	}
	return m, true
}

// Contains reports whether pid has a cached control handle.
func (c *Cache) Contains(pid uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[pid]
	return ok
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TrySnapshot returns the cached entries without blocking. UI-facing
// readers use this so a refresh in progress never stalls a frame; on
// contention they simply skip the update.
func (c *Cache) TrySnapshot() ([]CachedInfo, bool) {
	if !c.mu.TryLock() {
		return nil, false
	}
	defer c.mu.Unlock()
	out := make([]CachedInfo, 0, len(c.entries))
	for pid, e := range c.entries {
		out = append(out, CachedInfo{PID: pid, ProcessName: e.processName, DisplayName: e.displayName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, true
}

// release drops every cached control handle. Called on engine close.
func (c *Cache) release() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[uint32]*cachedSession)
	c.mu.Unlock()
	for _, e := range old {
		e.control.Release()
	}
}
