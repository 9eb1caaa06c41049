//go:build windows

package platform

import (
	"path/filepath"

	"golang.org/x/sys/windows"
)

// osNameStrategies returns the Win32 resolution tiers. The full-access
// tier works for ordinary user processes; the limited tier is required
// for protected and system processes that deny PROCESS_VM_READ.
func osNameStrategies() []nameStrategy {
	return []nameStrategy{
		{name: "full-access", resolve: fullAccessName},
		{name: "limited-access", resolve: limitedAccessName},
	}
}

func fullAccessName(pid uint32) (string, error) {
	return imageBaseName(pid, windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ)
}

func limitedAccessName(pid uint32) (string, error) {
	return imageBaseName(pid, windows.PROCESS_QUERY_LIMITED_INFORMATION)
}

// imageBaseName opens the process with the given access mask and returns
// the base name of its executable image.
func imageBaseName(pid uint32, access uint32) (string, error) {
	h, err := windows.OpenProcess(access, false, pid)
	if err != nil {
		return "", err
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return filepath.Base(windows.UTF16ToString(buf[:size])), nil
}
