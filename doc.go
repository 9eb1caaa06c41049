// Package quietfocus mutes the audio of background applications.
//
// It tracks which process owns the foreground window and mutes the
// playback sessions of every other sound-producing process, restoring
// audio when a process regains focus, is excluded, or when muting is
// disabled or the service shuts down.
//
// Key pieces:
//   - Cache holds long-lived mute-control handles keyed by process id,
//     so mute and unmute never re-enumerate.
//   - Engine is the reconciliation core: each tick it merges session
//     data with the foreground pid and the policy to compute the
//     minimal set of mute/unmute actions.
//   - Runner drives the tick loop on a configurable interval and
//     guarantees the unmute-all fail-safe runs on shutdown.
//
// Basic usage:
//
//	cfg := quietfocus.DefaultConfig()
//	eng, err := quietfocus.NewEngine(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r := quietfocus.NewRunner(eng)
//	r.Start()
//	defer r.Stop() // stops the loop, then unmutes everything we muted
package quietfocus
