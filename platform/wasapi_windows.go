//go:build windows

package platform

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"

	"github.com/quietfocus/quietfocus/internal/procid"
)

// Core Audio GUIDs.
var (
	clsidMMDeviceEnumerator  = ole.NewGUID("{BCDE0395-E52F-467C-8E3D-C4579291692E}")
	iidIMMDeviceEnumerator   = ole.NewGUID("{A95664D2-9614-4F35-A746-DE8DB63617E6}")
	iidIAudioSessionManager2 = ole.NewGUID("{77AA99A0-1BD6-484F-8BC7-2C654C9A9B6F}")
	iidIAudioSessionControl2 = ole.NewGUID("{BFB7FF88-7239-4FC9-8FA2-07C950BE9C6D}")
	iidISimpleAudioVolume    = ole.NewGUID("{87CE5498-68D6-44E5-9215-6DA47EF883D8}")
)

const (
	// EDataFlow
	eRender = 0

	// ERole: audio routing differs per role, so enumeration walks all three.
	eConsole        = 0
	eMultimedia     = 1
	eCommunications = 2

	clsctxAll = 0x17 // CLSCTX_ALL
)

var renderRoles = []uint32{eConsole, eMultimedia, eCommunications}

// wasapiAudio is the Windows Core Audio backend.
type wasapiAudio struct {
	resolver *resolver
	logger   *slog.Logger

	availOnce sync.Once
	available bool
}

func newWASAPIAudio() Audio {
	logger := slog.Default()
	return &wasapiAudio{
		resolver: newResolver(logger),
		logger:   logger,
	}
}

func (a *wasapiAudio) Name() string { return "windows-wasapi" }

// Available probes the audio subsystem once by creating a device
// enumerator. A machine without an audio endpoint still passes; only a
// broken or absent audio service fails.
func (a *wasapiAudio) Available() bool {
	a.availOnce.Do(func() {
		_ = ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED)
		enum, err := newDeviceEnumerator()
		if err != nil {
			a.logger.Warn("audio subsystem unreachable", "err", err)
			return
		}
		enum.Release()
		a.available = true
	})
	return a.available
}

// Sessions enumerates playback sessions across all render roles,
// deduplicating by pid. A role that fails to resolve or activate is
// skipped; the error surfaces only when nothing was reachable.
func (a *wasapiAudio) Sessions() ([]Session, error) {
	// Idempotent per-thread COM init; the backend is called from both
	// the poll goroutine and UI-facing callers.
	_ = ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED)

	enum, err := newDeviceEnumerator()
	if err != nil {
		return nil, fmt.Errorf("device enumerator: %w", err)
	}
	defer enum.Release()

	var (
		out     []Session
		seen    = make(map[uint32]struct{})
		lastErr error
	)
	for _, role := range renderRoles {
		if err := a.collectRole(enum, role, seen, &out); err != nil {
			a.logger.Debug("render role skipped", "role", role, "err", err)
			lastErr = err
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func (a *wasapiAudio) collectRole(enum *immDeviceEnumerator, role uint32, seen map[uint32]struct{}, out *[]Session) error {
	device, err := enum.defaultEndpoint(eRender, role)
	if err != nil {
		return fmt.Errorf("default endpoint: %w", err)
	}
	defer device.Release()

	mgr, err := device.sessionManager()
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}
	defer mgr.Release()

	sessEnum, err := mgr.sessionEnumerator()
	if err != nil {
		return fmt.Errorf("session enumerator: %w", err)
	}
	defer sessEnum.Release()

	count, err := sessEnum.count()
	if err != nil {
		return fmt.Errorf("session count: %w", err)
	}

	for i := 0; i < count; i++ {
		s, ok := a.readSession(sessEnum, i, seen)
		if ok {
			*out = append(*out, s)
		}
	}
	return nil
}

// readSession extracts one session. Individual session failures are
// swallowed: sessions come and go while we iterate.
func (a *wasapiAudio) readSession(sessEnum *audioSessionEnumerator, index int, seen map[uint32]struct{}) (Session, bool) {
	control, err := sessEnum.session(index)
	if err != nil {
		return Session{}, false
	}
	defer control.Release()

	control2, err := control.asControl2()
	if err != nil {
		return Session{}, false
	}
	defer control2.Release()

	pid, err := control2.processID()
	if err != nil {
		return Session{}, false
	}
	if _, dup := seen[pid]; dup {
		return Session{}, false
	}

	name := a.resolver.Resolve(pid)
	if control2.isSystemSounds() {
		name = procid.SystemSounds
	}

	vol, err := control.asSimpleVolume()
	if err != nil {
		return Session{}, false
	}

	muted, err := vol.muted()
	if err != nil {
		vol.Release()
		return Session{}, false
	}

	display := control2.displayName()
	if display == "" {
		display = procid.DisplayName(pid, name)
	}

	seen[pid] = struct{}{}
	return Session{
		PID:         pid,
		ProcessName: name,
		DisplayName: display,
		Muted:       muted,
		Control:     &wasapiControl{vol: vol},
	}, true
}

func (a *wasapiAudio) ForegroundPID() (uint32, bool) { return foregroundPID() }

func (a *wasapiAudio) ResolveProcessName(pid uint32) string { return a.resolver.Resolve(pid) }

func (a *wasapiAudio) AutostartSupported() bool { return true }

func (a *wasapiAudio) SetAutostart(enabled bool) error { return setAutostart(enabled) }

func (a *wasapiAudio) Cleanup() error { return nil }

// wasapiControl adapts ISimpleAudioVolume to SessionControl.
type wasapiControl struct {
	vol *simpleAudioVolume
}

func (c *wasapiControl) SetMute(mute bool) error { return c.vol.setMute(mute) }

func (c *wasapiControl) Muted() (bool, error) { return c.vol.muted() }

func (c *wasapiControl) Release() { c.vol.Release() }

// --- COM interop ---

// comCall invokes a vtable slot and converts a failing HRESULT to error.
func comCall(method uintptr, args ...uintptr) error {
	hr, _, _ := syscall.SyscallN(method, args...)
	if int32(hr) < 0 {
		return ole.NewError(hr)
	}
	return nil
}

func queryInterface(unk *ole.IUnknown, iid *ole.GUID) (*ole.IUnknown, error) {
	var out *ole.IUnknown
	hr, _, _ := syscall.SyscallN(
		unk.VTable().QueryInterface,
		uintptr(unsafe.Pointer(unk)),
		uintptr(unsafe.Pointer(iid)),
		uintptr(unsafe.Pointer(&out)),
	)
	if int32(hr) < 0 {
		return nil, ole.NewError(hr)
	}
	return out, nil
}

type immDeviceEnumerator struct{ ole.IUnknown }

type immDeviceEnumeratorVtbl struct {
	ole.IUnknownVtbl
	EnumAudioEndpoints                     uintptr
	GetDefaultAudioEndpoint                uintptr
	GetDevice                              uintptr
	RegisterEndpointNotificationCallback   uintptr
	UnregisterEndpointNotificationCallback uintptr
}

func newDeviceEnumerator() (*immDeviceEnumerator, error) {
	unk, err := ole.CreateInstance(clsidMMDeviceEnumerator, iidIMMDeviceEnumerator)
	if err != nil {
		return nil, err
	}
	return (*immDeviceEnumerator)(unsafe.Pointer(unk)), nil
}

func (v *immDeviceEnumerator) vtbl() *immDeviceEnumeratorVtbl {
	return (*immDeviceEnumeratorVtbl)(unsafe.Pointer(v.RawVTable))
}

func (v *immDeviceEnumerator) defaultEndpoint(dataFlow, role uint32) (*immDevice, error) {
	var device *immDevice
	err := comCall(v.vtbl().GetDefaultAudioEndpoint,
		uintptr(unsafe.Pointer(v)),
		uintptr(dataFlow),
		uintptr(role),
		uintptr(unsafe.Pointer(&device)),
	)
	if err != nil {
		return nil, err
	}
	return device, nil
}

type immDevice struct{ ole.IUnknown }

type immDeviceVtbl struct {
	ole.IUnknownVtbl
	Activate          uintptr
	OpenPropertyStore uintptr
	GetId             uintptr
	GetState          uintptr
}

func (v *immDevice) vtbl() *immDeviceVtbl {
	return (*immDeviceVtbl)(unsafe.Pointer(v.RawVTable))
}

func (v *immDevice) sessionManager() (*audioSessionManager2, error) {
	var mgr *audioSessionManager2
	err := comCall(v.vtbl().Activate,
		uintptr(unsafe.Pointer(v)),
		uintptr(unsafe.Pointer(iidIAudioSessionManager2)),
		uintptr(clsctxAll),
		0, // no activation params
		uintptr(unsafe.Pointer(&mgr)),
	)
	if err != nil {
		return nil, err
	}
	return mgr, nil
}

type audioSessionManager2 struct{ ole.IUnknown }

type audioSessionManager2Vtbl struct {
	ole.IUnknownVtbl
	GetAudioSessionControl        uintptr
	GetSimpleAudioVolume          uintptr
	GetSessionEnumerator          uintptr
	RegisterSessionNotification   uintptr
	UnregisterSessionNotification uintptr
	RegisterDuckNotification      uintptr
	UnregisterDuckNotification    uintptr
}

func (v *audioSessionManager2) vtbl() *audioSessionManager2Vtbl {
	return (*audioSessionManager2Vtbl)(unsafe.Pointer(v.RawVTable))
}

func (v *audioSessionManager2) sessionEnumerator() (*audioSessionEnumerator, error) {
	var enum *audioSessionEnumerator
	err := comCall(v.vtbl().GetSessionEnumerator,
		uintptr(unsafe.Pointer(v)),
		uintptr(unsafe.Pointer(&enum)),
	)
	if err != nil {
		return nil, err
	}
	return enum, nil
}

type audioSessionEnumerator struct{ ole.IUnknown }

type audioSessionEnumeratorVtbl struct {
	ole.IUnknownVtbl
	GetCount   uintptr
	GetSession uintptr
}

func (v *audioSessionEnumerator) vtbl() *audioSessionEnumeratorVtbl {
	return (*audioSessionEnumeratorVtbl)(unsafe.Pointer(v.RawVTable))
}

func (v *audioSessionEnumerator) count() (int, error) {
	var n int32
	err := comCall(v.vtbl().GetCount,
		uintptr(unsafe.Pointer(v)),
		uintptr(unsafe.Pointer(&n)),
	)
	return int(n), err
}

func (v *audioSessionEnumerator) session(index int) (*audioSessionControl, error) {
	var control *audioSessionControl
	err := comCall(v.vtbl().GetSession,
		uintptr(unsafe.Pointer(v)),
		uintptr(int32(index)),
		uintptr(unsafe.Pointer(&control)),
	)
	if err != nil {
		return nil, err
	}
	return control, nil
}

type audioSessionControl struct{ ole.IUnknown }

func (v *audioSessionControl) asControl2() (*audioSessionControl2, error) {
	unk, err := queryInterface(&v.IUnknown, iidIAudioSessionControl2)
	if err != nil {
		return nil, err
	}
	return (*audioSessionControl2)(unsafe.Pointer(unk)), nil
}

func (v *audioSessionControl) asSimpleVolume() (*simpleAudioVolume, error) {
	unk, err := queryInterface(&v.IUnknown, iidISimpleAudioVolume)
	if err != nil {
		return nil, err
	}
	return (*simpleAudioVolume)(unsafe.Pointer(unk)), nil
}

type audioSessionControl2 struct{ ole.IUnknown }

type audioSessionControl2Vtbl struct {
	ole.IUnknownVtbl
	GetState                           uintptr
	GetDisplayName                     uintptr
	SetDisplayName                     uintptr
	GetIconPath                        uintptr
	SetIconPath                        uintptr
	GetGroupingParam                   uintptr
	SetGroupingParam                   uintptr
	RegisterAudioSessionNotification   uintptr
	UnregisterAudioSessionNotification uintptr
	GetSessionIdentifier               uintptr
	GetSessionInstanceIdentifier       uintptr
	GetProcessId                       uintptr
	IsSystemSoundsSession              uintptr
	SetDuckingPreference               uintptr
}

func (v *audioSessionControl2) vtbl() *audioSessionControl2Vtbl {
	return (*audioSessionControl2Vtbl)(unsafe.Pointer(v.RawVTable))
}

func (v *audioSessionControl2) processID() (uint32, error) {
	var pid uint32
	err := comCall(v.vtbl().GetProcessId,
		uintptr(unsafe.Pointer(v)),
		uintptr(unsafe.Pointer(&pid)),
	)
	return pid, err
}

// isSystemSounds reports whether this is the system-sounds session.
// The method returns S_OK for yes and S_FALSE for no.
func (v *audioSessionControl2) isSystemSounds() bool {
	hr, _, _ := syscall.SyscallN(v.vtbl().IsSystemSoundsSession, uintptr(unsafe.Pointer(v)))
	return hr == 0
}

// displayName reads the session's display name, skipping empty values
// and "@dll,-id" resource references. Returns "" when unavailable.
func (v *audioSessionControl2) displayName() string {
	var p *uint16
	err := comCall(v.vtbl().GetDisplayName,
		uintptr(unsafe.Pointer(v)),
		uintptr(unsafe.Pointer(&p)),
	)
	if err != nil || p == nil {
		return ""
	}
	defer ole.CoTaskMemFree(uintptr(unsafe.Pointer(p)))
	name := windows.UTF16PtrToString(p)
	if strings.HasPrefix(name, "@") {
		return ""
	}
	return name
}

type simpleAudioVolume struct{ ole.IUnknown }

type simpleAudioVolumeVtbl struct {
	ole.IUnknownVtbl
	SetMasterVolume uintptr
	GetMasterVolume uintptr
	SetMute         uintptr
	GetMute         uintptr
}

func (v *simpleAudioVolume) vtbl() *simpleAudioVolumeVtbl {
	return (*simpleAudioVolumeVtbl)(unsafe.Pointer(v.RawVTable))
}

func (v *simpleAudioVolume) setMute(mute bool) error {
	var b int32
	if mute {
		b = 1
	}
	return comCall(v.vtbl().SetMute,
		uintptr(unsafe.Pointer(v)),
		uintptr(b),
		0, // no event context
	)
}

func (v *simpleAudioVolume) muted() (bool, error) {
	var b int32
	err := comCall(v.vtbl().GetMute,
		uintptr(unsafe.Pointer(v)),
		uintptr(unsafe.Pointer(&b)),
	)
	return b != 0, err
}
