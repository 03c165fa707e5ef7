package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"golang.org/x/term"

	"github.com/mrz1836/walletlink/internal/config"
	"github.com/mrz1836/walletlink/internal/output"
	"github.com/mrz1836/walletlink/internal/wallets/local"
	"github.com/mrz1836/walletlink/internal/wallets/walletconnect"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// Prompt hooks, replaced in tests.
//
//nolint:gochecknoglobals // Replaceable for testing
var (
	promptPasswordFn = promptPassword
	stdinIsTerminal  = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) } //nolint:gosec // G115: Fd() returns uintptr
)

// out is a helper for CLI output that ignores write errors (standard pattern for CLI tools).
//
//nolint:errcheck // CLI output writes to stdout are intentionally unchecked
func out(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes to stdout are intentionally unchecked
func outln(w io.Writer, args ...interface{}) {
	fmt.Fprintln(w, args...)
}

// promptPassword prompts for a password with hidden input.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	password, err := term.ReadPassword(syscall.Stdin)
	outln(os.Stderr) // Add newline after hidden input

	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	return password, nil
}

// passwordSource returns the local wallet password source: the
// environment first, then a single terminal prompt whose answer is reused
// for the rest of the command.
func passwordSource() local.PasswordFunc {
	var (
		once     sync.Once
		password string
		err      error
	)

	return func(_ context.Context) (string, error) {
		if v := os.Getenv(config.EnvLocalPassword); v != "" {
			return v, nil
		}
		if !stdinIsTerminal() {
			return "", walleterr.WithSuggestion(walleterr.ErrNotAuthorized,
				fmt.Sprintf("set %s or run in a terminal to unlock the local wallet", config.EnvLocalPassword))
		}

		once.Do(func() {
			var pw []byte
			pw, err = promptPasswordFn("Local wallet password: ")
			password = string(pw)
		})
		return password, err
	}
}

// displayURI shows a WalletConnect pairing URI: as text, as a terminal QR
// code when w is a terminal, and as a PNG when pngPath is set.
func displayURI(w io.Writer, pngPath string) walletconnect.DisplayFunc {
	return func(uri string) error {
		outln(w, "Scan with a WalletConnect wallet, or paste this URI:")
		outln(w, uri)
		if err := output.RenderQR(w, uri, output.DefaultQRConfig()); err != nil {
			return err
		}
		if pngPath == "" {
			return nil
		}
		if err := output.WriteQRPNG(pngPath, uri, output.DefaultPNGSize); err != nil {
			return fmt.Errorf("writing QR image: %w", err)
		}
		out(w, "QR code written to %s\n", pngPath)
		return nil
	}
}
