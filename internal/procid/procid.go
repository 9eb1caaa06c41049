// Package procid normalizes process identity for display and config matching.
// Executable names carry no semantic weight beyond case-insensitive matching
// against the exclusion and always-mute lists.
package procid

import (
	"fmt"
	"strings"
)

// SystemSounds is the pseudo-process label assigned to the OS mixer,
// system-sound services, and sessions whose owner cannot be resolved.
// Grouping them under one label keeps system sounds controllable as a
// single entry instead of a scatter of unnamed sessions.
const SystemSounds = "System Sounds"

// systemServiceExes are executable names that host OS sound playback and
// should be presented as the System Sounds pseudo-process.
var systemServiceExes = map[string]struct{}{
	"audiodg.exe": {},
	"sndvol.exe":  {},
}

// Normalize lowercases a process name for config matching.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsSystemService reports whether the executable name belongs to an OS
// audio service that should be folded into the System Sounds pseudo-process.
func IsSystemService(name string) bool {
	_, ok := systemServiceExes[Normalize(name)]
	return ok
}

// Placeholder returns the sentinel name used when every resolution
// strategy failed for a pid.
func Placeholder(pid uint32) string {
	return fmt.Sprintf("Process %d", pid)
}

// IsPlaceholder reports whether name is a sentinel produced by Placeholder.
func IsPlaceholder(name string) bool {
	return strings.HasPrefix(name, "Process ")
}

// DisplayName picks the session label: System Sounds for pid 0, system
// services, and unresolved names; otherwise the resolved executable name.
func DisplayName(pid uint32, resolved string) string {
	if pid == 0 || resolved == "" || IsSystemService(resolved) || IsPlaceholder(resolved) {
		return SystemSounds
	}
	return resolved
}
