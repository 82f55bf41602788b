// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package version provides information about the current binary.
package version

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
)

// CmdName returns the base name of the current binary.
func CmdName() string { return cmdName() }

var cmdName = sync.OnceValue(func() string {
	exe, err := os.Executable()
	if err != nil {
		return "bots"
	}
	return filepath.Base(exe)
})

// Version returns the version of the main module.
func Version() string { return version() }

var version = sync.OnceValue(func() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" || bi.Main.Version == "(devel)" {
		return "devel"
	}
	return bi.Main.Version
})

// UserAgent returns the User-Agent string sent with every outgoing HTTP
// request.
func UserAgent() string {
	return CmdName() + "/" + Version() + " (+https://go.astrophena.name/bots)"
}
