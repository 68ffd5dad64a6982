// Package app wires the two executables of the system together.
//
// LauncherApplication is the player side: it loads configuration, builds
// the license session, the key store and the engine launcher, and runs the
// foreground control flow
//
//	stored or -key key → verify → prompt until accepted → heartbeat → launch → wait
//
// Verification runs off the foreground goroutine; its outcome is applied on
// it. Heartbeat loss arrives as a notice on a channel and is reported while
// the game keeps running, unless stop_game_on_disconnect is set. The session
// is closed on every exit path.
//
// ServerApplication is the license server: file or Sheets backed stores,
// services, the admin event hub and the chi router behind an http.Server.
// Serve runs the server in an errgroup and shuts it down gracefully when
// the context ends; Run adds SIGINT and SIGTERM handling.
//
// Neither application calls os.Exit; main decides the exit status.
package app
