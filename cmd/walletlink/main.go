// Package main is the entry point for the walletlink CLI.
package main

import (
	"os"

	"github.com/mrz1836/walletlink/internal/cli"
)

// Build metadata, set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
//
//nolint:gochecknoglobals // populated by the linker
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	cli.SetBuildInfo(cli.BuildInfo{Version: version, Commit: commit, Date: date})
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
