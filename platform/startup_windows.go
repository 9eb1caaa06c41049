//go:build windows

package platform

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows/registry"
)

const (
	// runSubkey is the per-user Run key, so no elevation is required.
	runSubkey    = `Software\Microsoft\Windows\CurrentVersion\Run`
	runValueName = "QuietFocus"
)

// setAutostart registers or removes the current executable under the
// HKCU Run key. Removing a value that was never set is not an error.
func setAutostart(enabled bool) error {
	key, err := registry.OpenKey(registry.CURRENT_USER, runSubkey, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open run key: %w", err)
	}
	defer key.Close()

	if !enabled {
		if err := key.DeleteValue(runValueName); err != nil && !errors.Is(err, registry.ErrNotExist) {
			return fmt.Errorf("delete run value: %w", err)
		}
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	// Quote to survive spaces in the path.
	if err := key.SetStringValue(runValueName, `"`+exe+`"`); err != nil {
		return fmt.Errorf("set run value: %w", err)
	}
	return nil
}
