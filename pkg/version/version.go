// Package version exposes build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the release version of the runsort binary.
var Version = "dev"

// Commit is the Git hash the binary was built from.
var Commit = "<unknown>"

// Date is the build timestamp.
var Date = "<unknown>"

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "<unknown>" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "<unknown>" {
				Date = setting.Value
			}
		}
	}
}

// String formats the build metadata for display.
func String() string {
	return fmt.Sprintf("runsort %s (commit %s, built %s)", Version, Commit, Date)
}
