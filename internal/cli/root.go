// Package cli implements the walletlink command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mrz1836/walletlink/internal/config"
	"github.com/mrz1836/walletlink/internal/output"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	cmdCtx    *CommandContext

	// buildInfo is set by the main package.
	buildInfo BuildInfo
)

// BuildInfo carries build metadata injected at link time.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// SetBuildInfo records the build metadata shown by the version command.
func SetBuildInfo(info BuildInfo) {
	buildInfo = info
}

// FormatVersion renders build metadata for display.
func FormatVersion(info BuildInfo) string {
	v, commit, date := info.Version, info.Commit, info.Date
	if v == "" {
		v = devVersionString
	}
	if commit == "" {
		commit = "unknown"
	}
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", v, commit, date)
}

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "walletlink",
	Short: "Connect EVM wallets to a resumable session",
	Long: `walletlink connects an EVM wallet to a terminal session and keeps it.

It supports JSON-RPC provider wallets such as Frame, WalletConnect v1 mobile
wallets paired by QR code, a local encrypted key wallet, and smart contract
accounts owned by any of those. The last session is restored automatically
on every command, so a wallet connected once stays usable until you
disconnect it.`,
	Example: `  walletlink connect frame
  walletlink connect walletconnect --chain polygon
  walletlink status
  walletlink sign "hello"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initGlobals()
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(os.Stderr, err)
		return err
	}
	return nil
}

func printError(w io.Writer, err error) {
	if formatter != nil {
		_ = output.FormatError(w, err, formatter.Format())
		return
	}
	_ = output.FormatError(w, err, output.FormatText)
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return walleterr.ExitCode(err)
}

// initGlobals initializes global configuration, logger, and formatter.
func initGlobals() error {
	// Determine home directory
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	// Load or create config
	configPath := config.Path(home)
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		// Use defaults if config doesn't exist
		cfg = config.Defaults()
		cfg.Home = home
		cfg.Storage.Path = ""
		cfg.Logging.File = filepath.Join(home, "walletlink.log")
	}

	// Apply environment variable overrides
	config.ApplyEnvironment(cfg)

	// Override with command-line flags
	if homeDir != "" {
		cfg.Home = homeDir
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != "auto" {
		cfg.Output.DefaultFormat = outputFormat
	}

	// Initialize logger
	logLevel := config.ParseLogLevel(cfg.Logging.Level)
	logger, err = config.NewLogger(logLevel, cfg.Logging.File)
	if err != nil {
		// Use null logger if we can't create the file
		logger = config.NullLogger()
	}

	// Initialize formatter
	explicitFormat := output.ParseFormat(cfg.Output.DefaultFormat)
	detectedFormat := output.DetectFormat(os.Stdout, explicitFormat)
	formatter = output.NewFormatter(detectedFormat, os.Stdout)

	cmdCtx = NewCommandContext(cfg, logger, formatter)
	return nil
}

// cleanup releases resources.
func cleanup() {
	if cmdCtx != nil {
		cmdCtx.Close()
	}
	if logger != nil {
		_ = logger.Close()
	}
}

// Config returns the global configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the global logger.
func Logger() *config.Logger {
	return logger
}

// Formatter returns the global output formatter.
func Formatter() *output.Formatter {
	return formatter
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session Operations:"},
		&cobra.Group{ID: "wallet", Title: "Wallet Operations:"},
		&cobra.Group{ID: "security", Title: "Security & Access:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)
	rootCmd.SetHelpCommandGroupID("config")
	rootCmd.SetCompletionCommandGroupID("config")

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "walletlink data directory (default: ~/.walletlink)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}
