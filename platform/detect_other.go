//go:build !windows

package platform

// detectAudio returns an unsupported stub on operating systems without a
// session-level mute API. The engine refuses to start on these; the stub
// exists so the package compiles and tests run everywhere.
func detectAudio() Audio {
	return &unsupportedAudio{}
}
