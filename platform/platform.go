package platform

// Audio is the OS boundary for everything the muting engine needs:
// session enumeration, foreground-window ownership, process identity,
// and login autostart. Each supported operating system provides a
// concrete implementation.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Audio interface {
	// Name returns a human-readable identifier for this backend
	// (e.g., "windows-wasapi").
	Name() string

	// Available reports whether the audio subsystem is reachable on the
	// current system.
	Available() bool

	// Sessions enumerates the active playback sessions across all render
	// device roles, deduplicated by process id. A role that cannot be
	// reached is skipped; Sessions returns whatever it could collect and
	// only errors when no role was reachable at all.
	Sessions() ([]Session, error)

	// ForegroundPID returns the process id owning the focused top-level
	// window. ok is false when it cannot be determined.
	ForegroundPID() (pid uint32, ok bool)

	// ResolveProcessName resolves a pid to an executable name, falling
	// back through reduced-privilege lookups. It never fails: when every
	// strategy is exhausted it returns a "Process <pid>" placeholder.
	ResolveProcessName(pid uint32) string

	// AutostartSupported reports whether SetAutostart does anything here.
	AutostartSupported() bool

	// SetAutostart enables or disables launching at login.
	SetAutostart(enabled bool) error

	// Cleanup releases all backend resources.
	Cleanup() error
}

// Session describes one active playback session at enumeration time.
// The Control handle stays valid until released; everything else is a
// point-in-time snapshot.
type Session struct {
	// PID is the owning process id. 0 denotes the system-sounds session.
	PID uint32

	// ProcessName is the resolved executable name, the System Sounds
	// pseudo-process label, or a "Process <pid>" placeholder.
	ProcessName string

	// DisplayName is the session's human-facing label.
	DisplayName string

	// Muted is the OS mute flag at enumeration time.
	Muted bool

	// Control is the long-lived mute handle for this session.
	Control SessionControl
}

// SessionControl is a long-lived handle to one session's mute state.
// Reads go to the OS, not a cached copy, since the user or another
// application may flip the flag out-of-band.
type SessionControl interface {
	// SetMute sets the session's mute flag.
	SetMute(mute bool) error

	// Muted reads the session's current mute flag from the OS.
	Muted() (bool, error)

	// Release frees the underlying handle. The control must not be used
	// after Release.
	Release()
}

// Detect returns the audio backend for the current operating system.
// On systems without a supported audio subsystem it returns a stub whose
// Available method reports false.
func Detect() Audio {
	return detectAudio()
}

// NewUnsupportedAudio returns an Audio backend that always reports as
// unavailable. Useful for tests and for platforms without audio support.
func NewUnsupportedAudio() Audio {
	return &unsupportedAudio{}
}
