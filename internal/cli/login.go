package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/walletlink/internal/login"
	"github.com/mrz1836/walletlink/internal/output"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var loginNew bool

// loginCmd signs in through the dashboard.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the dashboard and cache the API secret key",
	Long: `Sign in through the dashboard in your browser.

walletlink listens on localhost for the dashboard's redirect and caches the
API secret key it carries in your operating system's keychain. An existing
key is reused unless --new is given.`,
	Example: `  walletlink login
  walletlink login --new`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// logoutCmd forgets the cached key.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Forget the cached API secret key",
	Long:    `Remove the API secret key cached by 'walletlink login' from the keychain.`,
	Example: `  walletlink logout`,
	Args:    cobra.NoArgs,
	RunE:    runLogout,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	loginCmd.GroupID = "security"
	logoutCmd.GroupID = "security"
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)

	loginCmd.Flags().BoolVar(&loginNew, "new", false, "sign in again even if a key is cached")
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	lc := cc.Config.Login

	timeout := time.Duration(lc.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = login.DefaultTimeout
	}
	ctx, cancel := contextWithTimeout(cmd, timeout+5*time.Second)
	defer cancel()

	key, err := login.Login(ctx, cc.LoginStore(), login.Config{
		DashboardURL: lc.DashboardURL,
		Port:         lc.Port,
		Timeout:      timeout,
		Open: func(u string) error {
			out(cmd.ErrOrStderr(), "Visit this link to authenticate:\n  %s\n", u)
			return nil
		},
	}, loginNew)
	if err != nil {
		return err
	}

	if cc.Formatter.IsJSON() {
		return output.WriteJSON(cmd.OutOrStdout(), map[string]any{"loggedIn": true, "key": maskSecret(key)})
	}
	out(cmd.OutOrStdout(), "Logged in (key %s)\n", maskSecret(key))
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	ctx, cancel := contextWithTimeout(cmd, sessionTimeout)
	defer cancel()

	cc := GetCmdContext(cmd)
	if err := login.Logout(ctx, cc.LoginStore()); err != nil {
		return err
	}

	if cc.Formatter.IsJSON() {
		return output.WriteJSON(cmd.OutOrStdout(), map[string]any{"loggedIn": false})
	}
	outln(cmd.OutOrStdout(), "You have been logged out")
	return nil
}

// maskSecret keeps the last four characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
