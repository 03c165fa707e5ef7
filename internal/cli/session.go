package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/mrz1836/walletlink/internal/chains"
	"github.com/mrz1836/walletlink/internal/connection"
	"github.com/mrz1836/walletlink/internal/output"
	"github.com/mrz1836/walletlink/internal/wallet"
	"github.com/mrz1836/walletlink/internal/wallets"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// connectTimeout bounds an interactive connect, which may wait on the user.
const connectTimeout = 5 * time.Minute

// sessionTimeout bounds non-interactive session commands.
const sessionTimeout = 2 * time.Minute

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	connectChain    string
	connectParams   []string
	connectPersonal string
	connectQRPNG    string
)

// connectCmd connects a wallet.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var connectCmd = &cobra.Command{
	Use:   "connect <wallet>",
	Short: "Connect a wallet and make it the active session",
	Long: `Connect a wallet and make it the active session.

The previous session, if any, is replaced. Smart wallets first connect their
personal wallet (--personal, default: the configured one) and then derive the
smart account from it. WalletConnect prints a pairing URI and QR code to scan
with a mobile wallet.

Wallet-specific values are passed with --param, for example the local
wallet's password, privateKey or mnemonic.`,
	Example: `  walletlink connect frame
  walletlink connect walletconnect --chain polygon --qr-png pair.png
  walletlink connect local --param password=hunter22
  walletlink connect smart --personal frame`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

// statusCmd shows the session.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the active wallet session",
	Long:    `Restore the last session and show its status, wallet, account and chain.`,
	Example: `  walletlink status
  walletlink status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// switchChainCmd moves the active wallet to another chain.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var switchChainCmd = &cobra.Command{
	Use:   "switch-chain <chain>",
	Short: "Switch the active wallet to another chain",
	Long: `Switch the active wallet to another chain, given by id, 0x hex id or slug.

Wallets that do not know the chain are asked to add it first.`,
	Example: `  walletlink switch-chain 137
  walletlink switch-chain arbitrum`,
	Args: cobra.ExactArgs(1),
	RunE: runSwitchChain,
}

// disconnectCmd ends the session.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the active wallet",
	Long: `Disconnect the active wallet and forget the session so it is not
restored by later commands.`,
	Example: `  walletlink disconnect`,
	Args:    cobra.NoArgs,
	RunE:    runDisconnect,
}

// signCmd signs a message with the active wallet.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var signCmd = &cobra.Command{
	Use:   "sign <message>",
	Short: "Sign a message with the active wallet",
	Long: `Sign a message with the active wallet using the personal message
(EIP-191) prefix. Smart wallets sign with their owner's key.`,
	Example: `  walletlink sign "hello world"
  walletlink sign "login nonce 42" -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runSign,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	for _, c := range []*cobra.Command{connectCmd, statusCmd, switchChainCmd, disconnectCmd, signCmd} {
		c.GroupID = "session"
		rootCmd.AddCommand(c)
	}

	connectCmd.Flags().StringVar(&connectChain, "chain", "", "chain to connect to (id or slug, default: chains.active)")
	connectCmd.Flags().StringArrayVar(&connectParams, "param", nil, "wallet-specific connect param as key=value (repeatable)")
	connectCmd.Flags().StringVar(&connectPersonal, "personal", "", "personal wallet a smart wallet is built on")
	connectCmd.Flags().StringVar(&connectQRPNG, "qr-png", "", "also write the WalletConnect QR code to this PNG file")
}

// sessionView is the printable state of a session.
type sessionView struct {
	Status   string `json:"status"`
	WalletID string `json:"walletId,omitempty"`
	Wallet   string `json:"wallet,omitempty"`
	Account  string `json:"account,omitempty"`
	ChainID  int64  `json:"chainId,omitempty"`
	Chain    string `json:"chain,omitempty"`
	Personal string `json:"personalWallet,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

// openSession builds the controller for this command and restores the
// previous session.
func openSession(ctx context.Context, cmd *cobra.Command, pngPath string) (*connection.Controller, error) {
	cc := GetCmdContext(cmd)
	c := cc.Config

	backend, err := cc.Storage(ctx)
	if err != nil {
		return nil, err
	}

	supported, err := cc.SupportedWallets(wallets.Deps{
		Display:  displayURI(cmd.ErrOrStderr(), pngPath),
		Password: passwordSource(),
	})
	if err != nil {
		return nil, err
	}

	active, err := chains.Lookup(c.Chains.Active)
	if err != nil {
		active = chains.Minimal(c.Chains.Active)
	}
	active = active.WithRPC(c.Chains.RPCOverrides[active.ChainID])

	var signerWallet *wallet.Descriptor
	if c.Session.SignerWallet != "" {
		if signerWallet, err = wallets.Find(supported, c.Session.SignerWallet); err != nil {
			return nil, err
		}
	}

	ctrl := connection.New(connection.Config{
		Wallets:  supported,
		Chain:    active,
		Chains:   chains.All(),
		ClientID: c.ClientID,
		App: wallet.AppMeta{
			Name:        c.App.Name,
			Description: c.App.Description,
			URL:         c.App.URL,
			Icons:       c.App.Icons,
		},
		Coordinator:        backend.Scope(wallet.CoordinatorScope),
		Stores:             backend.Scope,
		SkipAutoConnect:    !c.Session.AutoConnect,
		AutoConnectTimeout: c.GetAutoConnectTimeout(),
		SignerWallet:       signerWallet,
		Logger:             cc.Log(),
		Metrics:            cc.Metrics,
	})
	ctrl.AutoConnect(ctx)
	return ctrl, nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx, cancel := contextWithTimeout(cmd, connectTimeout)
	defer cancel()

	params, err := parseConnectParams(connectChain, connectParams)
	if err != nil {
		return err
	}

	ctrl, err := openSession(ctx, cmd, connectQRPNG)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	desc, err := wallets.Find(ctrl.Wallets(), args[0])
	if err != nil {
		return err
	}

	if err := connectWallet(ctx, ctrl, desc, connectPersonal, params); err != nil {
		return err
	}
	return printSession(cmd, ctrl)
}

// connectWallet connects desc. A composite with an explicit personal
// wallet runs the two stages itself; otherwise the controller picks the
// first personal option.
func connectWallet(ctx context.Context, ctrl *connection.Controller, desc *wallet.Descriptor, personalID string, params wallet.Params) error {
	if personalID == "" || !desc.IsComposite() {
		_, err := ctrl.Connect(ctx, desc, params)
		return err
	}

	personal := desc.PersonalOption(personalID)
	if personal == nil {
		return walleterr.WithSuggestion(
			walleterr.Template(walleterr.ErrUnsupportedWallet, map[string]string{"walletId": personalID}),
			fmt.Sprintf("%s can be built on: %s", desc.ID, strings.Join(wallets.IDs(desc.PersonalWallets), ", ")),
		)
	}

	flow, err := ctrl.NewCompositeFlow(desc, personal)
	if err != nil {
		return err
	}
	if _, err := flow.ConnectPersonal(ctx, wallet.Params{ChainID: params.ChainID}); err != nil {
		return err
	}
	_, err = flow.Finalize(ctx, params)
	return err
}

// parseConnectParams builds connect params from the --chain and --param
// flags.
func parseConnectParams(chain string, kv []string) (wallet.Params, error) {
	var params wallet.Params

	if chain != "" {
		c, err := chains.Resolve(chain)
		if err != nil {
			return params, err
		}
		params.ChainID = c.ChainID
	}

	for _, pair := range kv {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return params, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
				"param":  pair,
				"reason": "expected key=value",
			})
		}
		params.Set(key, value)
	}
	return params, nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx, cancel := contextWithTimeout(cmd, sessionTimeout)
	defer cancel()

	ctrl, err := openSession(ctx, cmd, "")
	if err != nil {
		return err
	}
	defer ctrl.Close()

	return printSession(cmd, ctrl)
}

func runSwitchChain(cmd *cobra.Command, args []string) error {
	ctx, cancel := contextWithTimeout(cmd, connectTimeout)
	defer cancel()

	target, err := chains.Resolve(args[0])
	if err != nil {
		return err
	}

	ctrl, err := openSession(ctx, cmd, "")
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.SwitchChain(ctx, target.ChainID); err != nil {
		return err
	}
	return printSession(cmd, ctrl)
}

func runDisconnect(cmd *cobra.Command, _ []string) error {
	ctx, cancel := contextWithTimeout(cmd, sessionTimeout)
	defer cancel()

	ctrl, err := openSession(ctx, cmd, "")
	if err != nil {
		return err
	}
	defer ctrl.Close()

	var walletID string
	if desc := ctrl.ActiveDescriptor(); desc != nil {
		walletID = desc.ID
	}
	if err := ctrl.Disconnect(ctx); err != nil {
		// The session is already cleared; only the wallet side failed.
		output.Warn(cmd.ErrOrStderr(), "%s did not acknowledge the disconnect: %v", walletID, err)
	}

	fmtr := GetCmdContext(cmd).Formatter
	if fmtr.IsJSON() {
		return output.WriteJSON(cmd.OutOrStdout(), sessionView{Status: ctrl.Status().String(), WalletID: walletID})
	}
	if walletID == "" {
		outln(cmd.OutOrStdout(), "No active wallet; session cleared")
		return nil
	}
	out(cmd.OutOrStdout(), "Disconnected %s\n", walletID)
	return nil
}

func runSign(cmd *cobra.Command, args []string) error {
	ctx, cancel := contextWithTimeout(cmd, connectTimeout)
	defer cancel()

	ctrl, err := openSession(ctx, cmd, "")
	if err != nil {
		return err
	}
	defer ctrl.Close()

	signer := ctrl.Signer()
	if signer == nil {
		return walleterr.ErrNoActiveWallet
	}

	sig, err := signer.SignMessage(ctx, []byte(args[0]))
	if err != nil {
		return err
	}

	fmtr := GetCmdContext(cmd).Formatter
	if fmtr.IsJSON() {
		return output.WriteJSON(cmd.OutOrStdout(), struct {
			Address   string `json:"address"`
			Message   string `json:"message"`
			Signature string `json:"signature"`
		}{signer.Address().Hex(), args[0], hexutil.Encode(sig)})
	}
	outln(cmd.OutOrStdout(), hexutil.Encode(sig))
	return nil
}

// viewOf captures the controller's session.
func viewOf(ctrl *connection.Controller) sessionView {
	v := sessionView{Status: ctrl.Status().String()}

	desc := ctrl.ActiveDescriptor()
	if desc == nil {
		return v
	}
	v.WalletID = desc.ID
	v.Wallet = desc.Meta.Name

	if signer := ctrl.Signer(); signer != nil {
		v.Account = signer.Address().Hex()
		if o, ok := signer.(interface{ Owner() common.Address }); ok {
			v.Owner = o.Owner().Hex()
		}
	}

	v.ChainID = ctrl.ChainID()
	if c, err := chains.Lookup(v.ChainID); err == nil {
		v.Chain = c.Name
	}

	if inst := ctrl.ActiveWallet(); inst != nil {
		if p := inst.PersonalWallet(); p != nil {
			v.Personal = p.ID()
		}
	}
	return v
}

func printSession(cmd *cobra.Command, ctrl *connection.Controller) error {
	v := viewOf(ctrl)
	return GetCmdContext(cmd).Formatter.Emit(cmd.OutOrStdout(), v, func(w io.Writer) error {
		if v.WalletID == "" {
			out(w, "Status:  %s\n", v.Status)
			outln(w, "No wallet connected.")
			output.Hint(cmd.ErrOrStderr(), "run 'walletlink connect <wallet>' to connect one")
			return nil
		}

		table := output.NewTable("FIELD", "VALUE")
		table.SetNoHeader(true)
		table.AddRow("Status:", v.Status)
		table.AddRow("Wallet:", fmt.Sprintf("%s (%s)", v.Wallet, v.WalletID))
		table.AddRow("Account:", v.Account)
		if v.Owner != "" {
			table.AddRow("Owner:", v.Owner)
		}
		if v.Personal != "" {
			table.AddRow("Personal:", v.Personal)
		}
		chain := fmt.Sprintf("%d", v.ChainID)
		if v.Chain != "" {
			chain = fmt.Sprintf("%s (%d)", v.Chain, v.ChainID)
		}
		table.AddRow("Chain:", chain)
		return table.Render(w)
	})
}
