package main

import (
	"os"

	"github.com/tailorforge/tailorbatch/internal/cmd"
)

// Build metadata, injected at link time via -ldflags.
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	os.Exit(cmd.Execute())
}
