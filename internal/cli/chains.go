package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/walletlink/internal/chains"
	"github.com/mrz1836/walletlink/internal/output"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var chainsTestnets bool

// chainsCmd lists known chains.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List known chains",
	Long: `List the chains walletlink knows how to connect to and switch between.

Mainnets are listed by default; --testnets includes test networks.`,
	Example: `  walletlink chains
  walletlink chains --testnets -o json`,
	Args: cobra.NoArgs,
	RunE: runChains,
}

// chainsShowCmd shows one chain.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var chainsShowCmd = &cobra.Command{
	Use:   "show <chain>",
	Short: "Show chain details",
	Long:  `Show the metadata of one chain, given by id, 0x hex id or slug.`,
	Example: `  walletlink chains show polygon
  walletlink chains show 0x89`,
	Args: cobra.ExactArgs(1),
	RunE: runChainsShow,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	chainsCmd.GroupID = "wallet"
	rootCmd.AddCommand(chainsCmd)
	chainsCmd.AddCommand(chainsShowCmd)
	enrichParentLong(chainsCmd)

	chainsCmd.Flags().BoolVar(&chainsTestnets, "testnets", false, "include test networks")
}

func runChains(cmd *cobra.Command, _ []string) error {
	list := make([]chains.Chain, 0)
	for _, c := range chains.All() {
		if c.Testnet && !chainsTestnets {
			continue
		}
		list = append(list, c)
	}

	fmtr := GetCmdContext(cmd).Formatter
	if fmtr.IsJSON() {
		return output.WriteJSON(cmd.OutOrStdout(), list)
	}

	table := output.NewTable("ID", "SLUG", "NAME", "CURRENCY")
	for _, c := range list {
		table.AddRow(strconv.FormatInt(c.ChainID, 10), c.Slug, c.Name, c.NativeCurrency.Symbol)
	}
	return table.Render(cmd.OutOrStdout())
}

func runChainsShow(cmd *cobra.Command, args []string) error {
	c, err := chains.Resolve(args[0])
	if err != nil {
		return err
	}

	cc := GetCmdContext(cmd)
	if cc.Formatter.IsJSON() {
		return output.WriteJSON(cmd.OutOrStdout(), c)
	}

	table := output.NewTable("FIELD", "VALUE")
	table.SetNoHeader(true)
	table.AddRow("Name:", c.Name)
	table.AddRow("Chain ID:", strconv.FormatInt(c.ChainID, 10)+" ("+c.HexID()+")")
	table.AddRow("Slug:", c.Slug)
	table.AddRow("Currency:", c.NativeCurrency.Name+" ("+c.NativeCurrency.Symbol+")")
	table.AddRow("Testnet:", strconv.FormatBool(c.Testnet))
	table.AddRow("RPC:", strings.Join(c.RPCURLs(cc.Config.ClientID), ", "))
	if explorers := c.ExplorerURLs(); len(explorers) > 0 {
		table.AddRow("Explorers:", strings.Join(explorers, ", "))
	}
	return table.Render(cmd.OutOrStdout())
}
