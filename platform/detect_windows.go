//go:build windows

package platform

// detectAudio returns the WASAPI backend on Windows.
func detectAudio() Audio {
	return newWASAPIAudio()
}
