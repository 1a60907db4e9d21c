// Package buildconfig exposes version metadata stamped at link time:
//
//	go build -ldflags "-X .../internal/buildconfig.version=v1.2.3"
package buildconfig

var (
	version = "dev"
	commit  = "unknown"
)

func Version() string { return version }

func Commit() string { return commit }

// VersionInfo is the payload served by the version endpoint.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}
