// Package version exposes the build version of the server.
package version

// version is set at build time via -ldflags.
var version = "dev"

// Get returns the build version.
func Get() string {
	return version
}
