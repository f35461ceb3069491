package version

import "runtime/debug"

// Name is the program name reported to MCP clients and on the CLI.
const Name = "xlread"

var version = "dev"

// Version returns the build string embedded via -ldflags when available.
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Sum != "" {
		return info.Main.Version
	}
	return version
}

// Set assigns the exported version when ldflags are not provided (e.g. local dev).
func Set(v string) {
	if v != "" {
		version = v
	}
}

// String renders "name version" for banners and --version output.
func String() string { return Name + " " + Version() }
