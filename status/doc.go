// Package status exposes the engine's state to presentation layers over
// HTTP and websocket. It serves data only; rendering belongs to whatever
// consumes it.
package status
