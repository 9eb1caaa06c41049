// Package platform defines the OS audio abstraction layer.
// Most users should use the top-level quietfocus package, which selects
// the appropriate backend automatically. Import this package directly
// only if you need to talk to the audio subsystem without the
// reconciliation engine, or to implement a custom Audio backend.
package platform
