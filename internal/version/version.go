// Package version carries the build metadata shown by the version
// command.
package version

import (
	"fmt"
	"runtime/debug"
)

// Stamped via -ldflags on release builds; go-install builds fall back
// to the module version recorded in the binary.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("%s (%s, %s)", resolved(), Commit, Date)
}

func resolved() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return Version
}
