// Package version holds build information stamped in with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/clubhub/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/clubhub/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/clubhub/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns "version (commit) built time".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// Attrs returns the build information as slog key/value pairs.
func Attrs() []any {
	return []any{"version", Version, "commit", Commit, "built", BuildTime}
}
