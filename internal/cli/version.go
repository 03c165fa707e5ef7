package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/walletlink/internal/output"
	versionpkg "github.com/mrz1836/walletlink/internal/version"
)

const (
	// devVersionString is the string used for development versions
	devVersionString = versionpkg.Dev
	// versionCheckTimeout bounds the release lookup
	versionCheckTimeout = 10 * time.Second
)

// checkLatestFn looks up the latest release, replaced in tests.
//
//nolint:gochecknoglobals // Replaceable for testing
var checkLatestFn = func(ctx context.Context, current string) (*versionpkg.Info, error) {
	return versionpkg.NewClient().Check(ctx, current)
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var versionCheck bool

// versionCmd prints build metadata.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the walletlink version",
	Long: `Print the walletlink version, commit and build date.

With --check, also look up the latest release on GitHub.`,
	Example: `  walletlink version
  walletlink version --check -o json`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	versionCmd.GroupID = "config"
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check GitHub for a newer release")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	fmtr := GetCmdContext(cmd).Formatter
	asJSON := fmtr.IsJSON()

	var info *versionpkg.Info
	if versionCheck {
		ctx, cancel := contextWithTimeout(cmd, versionCheckTimeout)
		defer cancel()

		var err error
		if info, err = checkLatestFn(ctx, buildInfo.Version); err != nil {
			return err
		}
	}

	if asJSON {
		return output.WriteJSON(w, struct {
			BuildInfo
			Release *versionpkg.Info `json:"release,omitempty"`
		}{buildInfo, info})
	}

	outln(w, "walletlink "+FormatVersion(buildInfo))
	if info == nil {
		return nil
	}
	if info.IsNewer {
		out(w, "A newer version is available: %s -> %s\n", info.Current, info.Latest)
		if info.URL != "" {
			outln(w, info.URL)
		}
		return nil
	}
	outln(w, "You are on the latest version")
	return nil
}
