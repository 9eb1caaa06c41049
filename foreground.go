package quietfocus

import "github.com/quietfocus/quietfocus/platform"

// ForegroundTracker polls the OS for the process owning the focused
// top-level window and reports transitions. A transition is the primary
// trigger for an expedited session refresh: audio routing commonly
// changes exactly when the user switches applications.
type ForegroundTracker struct {
	audio    platform.Audio
	last     uint32
	haveLast bool
}

func newForegroundTracker(audio platform.Audio) *ForegroundTracker {
	return &ForegroundTracker{audio: audio}
}

// Poll returns the current foreground pid. ok is false when it cannot
// be determined (locked session, secure desktop, window mid-activation).
func (t *ForegroundTracker) Poll() (uint32, bool) {
	return t.audio.ForegroundPID()
}

// CheckChange polls and returns the new foreground pid only on a
// transition since the previous call. changed is also true when the
// foreground goes from known to undeterminable or back.
func (t *ForegroundTracker) CheckChange() (pid uint32, ok bool, changed bool) {
	pid, ok = t.audio.ForegroundPID()
	changed = ok != t.haveLast || (ok && pid != t.last)
	t.last = pid
	t.haveLast = ok
	return pid, ok, changed
}

// Last returns the most recently observed foreground pid.
func (t *ForegroundTracker) Last() (uint32, bool) {
	return t.last, t.haveLast
}
