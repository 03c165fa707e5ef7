package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/walletlink/internal/output"
	"github.com/mrz1836/walletlink/internal/wallet"
	"github.com/mrz1836/walletlink/internal/wallets"
)

// installProbeTimeout bounds the reachability probe of all wallets.
const installProbeTimeout = 5 * time.Second

// walletsCmd lists the supported wallets.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "List supported wallets",
	Long: `List the wallets walletlink can connect, whether each one is reachable
right now, and which personal wallets a smart wallet can be built on.`,
	Example: `  walletlink wallets
  walletlink wallets -o json`,
	Args: cobra.NoArgs,
	RunE: runWallets,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	walletsCmd.GroupID = "wallet"
	rootCmd.AddCommand(walletsCmd)
}

// walletView is the printable form of a descriptor.
type walletView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Installed   bool     `json:"installed"`
	Headless    bool     `json:"headless"`
	Recommended bool     `json:"recommended"`
	Personal    []string `json:"personalWallets,omitempty"`
}

func runWallets(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	supported, err := cc.SupportedWallets(wallets.Deps{})
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, installProbeTimeout)
	defer cancel()
	views := describeWallets(ctx, supported)

	if cc.Formatter.IsJSON() {
		return output.WriteJSON(cmd.OutOrStdout(), views)
	}

	table := output.NewTable("ID", "NAME", "STATUS", "NOTES")
	for _, v := range views {
		status := "not found"
		if v.Installed {
			status = "available"
		}
		var notes []string
		if v.Recommended {
			notes = append(notes, "recommended")
		}
		if v.Headless {
			notes = append(notes, "headless")
		}
		if len(v.Personal) > 0 {
			notes = append(notes, "built on "+strings.Join(v.Personal, ", "))
		}
		table.AddRow(v.ID, v.Name, status, strings.Join(notes, "; "))
	}
	return table.Render(cmd.OutOrStdout())
}

// describeWallets probes every wallet concurrently.
func describeWallets(ctx context.Context, list []*wallet.Descriptor) []walletView {
	views := make([]walletView, len(list))
	done := make(chan struct{}, len(list))

	for i, d := range list {
		views[i] = walletView{
			ID:          d.ID,
			Name:        d.Meta.Name,
			Description: d.Meta.Description,
			Headless:    d.Headless,
			Recommended: d.Recommended,
		}
		if d.IsComposite() {
			views[i].Personal = wallets.IDs(d.PersonalWallets)
		}
		go func(i int, d *wallet.Descriptor) {
			views[i].Installed = d.Installed(ctx)
			done <- struct{}{}
		}(i, d)
	}
	for range list {
		<-done
	}
	return views
}
