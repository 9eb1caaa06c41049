package quietfocus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quietfocus/quietfocus/platform"
)

// fakeProc is one simulated audio-producing process. Its mute flag is
// shared by every handle ever issued for it, mirroring how the OS keeps
// one mute state per session regardless of how many controls reference it.
type fakeProc struct {
	mu      sync.Mutex
	pid     uint32
	name    string
	display string
	muted   bool

	muteCalls   int
	unmuteCalls int
	setErr      error
	getErr      error
}

func (p *fakeProc) setMute(m bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setErr != nil {
		return p.setErr
	}
	if m {
		p.muteCalls++
	} else {
		p.unmuteCalls++
	}
	p.muted = m
	return nil
}

func (p *fakeProc) isMuted() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return false, p.getErr
	}
	return p.muted, nil
}

func (p *fakeProc) counts() (mutes, unmutes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muteCalls, p.unmuteCalls
}

// fakeHandle is one issued control handle. Each enumeration hands out a
// fresh handle, like a fresh COM interface pointer.
type fakeHandle struct {
	proc     *fakeProc
	mu       sync.Mutex
	released bool
}

func (h *fakeHandle) SetMute(m bool) error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return errors.New("fake: control used after release")
	}
	h.mu.Unlock()
	return h.proc.setMute(m)
}

func (h *fakeHandle) Muted() (bool, error) {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return false, errors.New("fake: control used after release")
	}
	h.mu.Unlock()
	return h.proc.isMuted()
}

func (h *fakeHandle) Release() {
	h.mu.Lock()
	h.released = true
	h.mu.Unlock()
}

// fakeAudio is a scripted platform.Audio backend.
type fakeAudio struct {
	mu        sync.Mutex
	procs     map[uint32]*fakeProc
	order     []uint32
	fgPID     uint32
	fgOK      bool
	enumErr   error
	enumCount int
	cleaned   bool
}

func newFakeAudio() *fakeAudio {
	return &fakeAudio{procs: make(map[uint32]*fakeProc)}
}

func (a *fakeAudio) addProc(pid uint32, name string) *fakeProc {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := &fakeProc{pid: pid, name: name, display: name}
	a.procs[pid] = p
	a.order = append(a.order, pid)
	return p
}

func (a *fakeAudio) removeProc(pid uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.procs, pid)
	out := a.order[:0]
	for _, id := range a.order {
		if id != pid {
			out = append(out, id)
		}
	}
	a.order = out
}

func (a *fakeAudio) setForeground(pid uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fgPID = pid
	a.fgOK = true
}

func (a *fakeAudio) clearForeground() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fgOK = false
}

func (a *fakeAudio) setEnumErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enumErr = err
}

func (a *fakeAudio) enumerations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enumCount
}

func (a *fakeAudio) Name() string    { return "fake" }
func (a *fakeAudio) Available() bool { return true }

func (a *fakeAudio) Sessions() ([]platform.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enumCount++
	if a.enumErr != nil {
		return nil, a.enumErr
	}
	out := make([]platform.Session, 0, len(a.order))
	for _, pid := range a.order {
		p := a.procs[pid]
		muted, _ := p.isMuted()
		out = append(out, platform.Session{
			PID:         p.pid,
			ProcessName: p.name,
			DisplayName: p.display,
			Muted:       muted,
			Control:     &fakeHandle{proc: p},
		})
	}
	return out, nil
}

func (a *fakeAudio) ForegroundPID() (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fgPID, a.fgOK
}

func (a *fakeAudio) ResolveProcessName(pid uint32) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.procs[pid]; ok {
		return p.name
	}
	return "Process unknown"
}

func (a *fakeAudio) AutostartSupported() bool  { return false }
func (a *fakeAudio) SetAutostart(_ bool) error { return errors.New("fake: no autostart") }

func (a *fakeAudio) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleaned = true
	return nil
}

// useFakeAudio overrides detectAudioFn with fa and restores the
// original when the test finishes.
func useFakeAudio(t *testing.T, fa *fakeAudio) {
	t.Helper()
	orig := detectAudioFn
	detectAudioFn = func() platform.Audio { return fa }
	t.Cleanup(func() { detectAudioFn = orig })
}

// testClock is a manually advanced clock injected into the engine.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// newTestEngine wires an engine to a fakeAudio and a manual clock.
func newTestEngine(t *testing.T, fa *fakeAudio, cfg *Config) (*Engine, *testClock) {
	t.Helper()
	useFakeAudio(t, fa)
	if cfg == nil {
		cfg = DefaultConfig()
	}
	eng, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	clock := newTestClock()
	eng.now = clock.Now
	t.Cleanup(func() { _ = eng.Close() })
	return eng, clock
}
