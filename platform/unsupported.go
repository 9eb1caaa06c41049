package platform

import "errors"

// unsupportedName is the name returned by the unsupported backend stub.
const unsupportedName = "unsupported"

// unsupportedAudio is returned on operating systems where no audio
// session backend is available.
type unsupportedAudio struct{}

func (a *unsupportedAudio) Name() string { return unsupportedName }

func (a *unsupportedAudio) Available() bool { return false }

func (a *unsupportedAudio) Sessions() ([]Session, error) {
	return nil, errors.New("audio sessions not supported on this operating system")
}

func (a *unsupportedAudio) ForegroundPID() (uint32, bool) { return 0, false }

func (a *unsupportedAudio) ResolveProcessName(pid uint32) string {
	return resolvePlaceholder(pid)
}

func (a *unsupportedAudio) AutostartSupported() bool { return false }

func (a *unsupportedAudio) SetAutostart(_ bool) error {
	return errors.New("autostart not supported on this operating system")
}

func (a *unsupportedAudio) Cleanup() error { return nil }
