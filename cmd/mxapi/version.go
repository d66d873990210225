package main

import (
	_ "embed"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var embeddedVersion string

// Version returns the version string.
//
// Installed binaries report their module version (e.g., "v0.3.0"). Development
// builds report "devel-0.3.0+abc1234", with the VCS revision when known.
func Version() string {
	base := strings.TrimSpace(embeddedVersion)

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "mxapi " + base
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return "mxapi " + v
	}

	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return "mxapi devel-" + base + "+" + s.Value[:7]
		}
	}
	return "mxapi devel-" + base
}
