// Package command defines the authcore-server command line using
// urfave/cli/v2:
//
//   - root.go: the App, global flags and config loading
//   - serve.go: the serve command
//   - server.go: component wiring, the run loop and hot reload
//   - config.go: config check and config show
//   - storage.go: offline backup, restore, GC and expired-session sweeps
//   - version.go: build information
//
// Commands write to App.Writer so tests can capture their output.
package command
