// Package version exposes the build identity stamped into tickerd and its
// companion binaries via ldflags, so a running process can log and report
// exactly what it was built from.
package version

import "log/slog"

// These are overwritten at link time, e.g.:
//
//	go build -ldflags "-X .../internal/version.Version=1.2.0 -X .../internal/version.Commit=$(git rev-parse --short HEAD) -X .../internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String renders the build identity as a single log-friendly line.
func String() string {
	return Version + " (" + Commit + "), built " + BuildTime
}

// LogValue groups the build identity into a single slog.Value, so a startup
// log line can attach it as one "build" attribute instead of every caller
// in cmd/ listing version/commit/build_time out by hand.
func LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("build_time", BuildTime),
	)
}
