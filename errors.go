package quietfocus

import "errors"

// Sentinel errors returned by the quietfocus package.
var (
	// ErrAudioUnavailable indicates the audio subsystem cannot be reached.
	// The engine refuses to start without it.
	ErrAudioUnavailable = errors.New("quietfocus: audio subsystem unavailable")

	// ErrEngineClosed indicates the engine has already been closed.
	ErrEngineClosed = errors.New("quietfocus: engine already closed")

	// ErrConfigInvalid indicates the provided configuration failed validation.
	ErrConfigInvalid = errors.New("quietfocus: invalid configuration")

	// ErrRunnerStarted indicates Start was called on an already-running Runner.
	ErrRunnerStarted = errors.New("quietfocus: runner already started")
)
