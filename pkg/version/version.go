package version

import (
	"fmt"
	"runtime"

	"github.com/willibrandon/chronosnap/pkg/snapshot"
)

// These variables are populated by the build process
var (
	// Version is the version of the build
	Version = "dev"
	// BuildTime is the time when the build was created
	BuildTime = "unknown"
)

// GetVersionInfo returns a formatted string with version information
func GetVersionInfo() string {
	return fmt.Sprintf("chronosnap %s (built: %s, %s/%s, %d-bit chunk keys)",
		Version,
		BuildTime,
		runtime.GOOS,
		runtime.GOARCH,
		snapshot.KeyBits,
	)
}

// GetVersion returns just the version number
func GetVersion() string {
	return Version
}
