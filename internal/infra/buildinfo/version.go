package buildinfo

import "runtime"

// Build-time variables (set via ldflags).
var (
	// Version is the semantic version of the server.
	Version = "dev"

	// Commit is the git commit hash.
	Commit = "unknown"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// CoreVersion is the core release this server is wire compatible with. It is
// what the telemetry report and the "version" command advertise.
const CoreVersion = "9.0.0"

// Info contains build information.
type Info struct {
	Version     string `json:"version"`
	CoreVersion string `json:"coreVersion"`
	Commit      string `json:"commit"`
	BuildTime   string `json:"buildTime"`
	GoVersion   string `json:"goVersion"`
}

// Get returns the build information.
func Get() Info {
	return Info{
		Version:     Version,
		CoreVersion: CoreVersion,
		Commit:      Commit,
		BuildTime:   BuildTime,
		GoVersion:   runtime.Version(),
	}
}

// String returns a one-line version description.
func String() string {
	return Version + " (core " + CoreVersion + ", " + Commit + ") built at " + BuildTime
}
