// Package wallets assembles the built-in wallet kinds into the supported
// wallet set.
package wallets

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/walletlink/internal/config"
	"github.com/mrz1836/walletlink/internal/wallet"
	"github.com/mrz1836/walletlink/internal/wallets/injected"
	"github.com/mrz1836/walletlink/internal/wallets/local"
	"github.com/mrz1836/walletlink/internal/wallets/rpc"
	"github.com/mrz1836/walletlink/internal/wallets/smart"
	"github.com/mrz1836/walletlink/internal/wallets/walletconnect"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// Deps supplies the interactive pieces wallet kinds need.
type Deps struct {
	// Display shows a WalletConnect pairing URI.
	Display walletconnect.DisplayFunc
	// Password unlocks the local wallet without a prompt.
	Password local.PasswordFunc
}

// Supported builds the supported wallet set from cfg. The smart wallet
// wraps the personal wallet named in cfg.Wallets.Smart.Personal.
func Supported(cfg *config.Config, deps Deps) ([]*wallet.Descriptor, error) {
	w := cfg.Wallets
	limiter := rpc.NewRateLimiter(w.RateLimitPerSecond, int(w.RateLimitPerSecond))
	poll := time.Duration(w.PollIntervalSeconds) * time.Second

	personal := []*wallet.Descriptor{
		injected.FrameDescriptor(injected.Config{URL: w.FrameURL, PollInterval: poll, Limiter: limiter}),
		injected.Descriptor(injected.Config{URL: w.InjectedURL, PollInterval: poll, Limiter: limiter}),
		walletconnect.Descriptor(walletconnect.Config{
			Bridge:  w.WalletConnect.Bridge,
			Timeout: time.Duration(w.WalletConnect.TimeoutSeconds) * time.Second,
			Display: deps.Display,
		}),
		local.Descriptor(local.Config{Password: deps.Password}),
	}

	if w.Smart.Personal == "" {
		return personal, nil
	}
	owner, err := Find(personal, w.Smart.Personal)
	if err != nil {
		return nil, err
	}
	smartCfg, err := smartConfig(w.Smart)
	if err != nil {
		return nil, err
	}
	return append(personal, smart.Wrap(owner, smartCfg)), nil
}

func smartConfig(sc config.SmartWalletConfig) (smart.Config, error) {
	if !common.IsHexAddress(sc.FactoryAddress) {
		return smart.Config{}, walleterr.WithDetails(walleterr.ErrInvalidAddress, map[string]string{
			"factory_address": sc.FactoryAddress,
		})
	}

	var hash common.Hash
	if sc.InitCodeHash != "" {
		raw := strings.TrimPrefix(sc.InitCodeHash, "0x")
		if len(raw) != 2*common.HashLength {
			return smart.Config{}, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
				"init_code_hash": sc.InitCodeHash,
			})
		}
		hash = common.HexToHash(raw)
	}
	return smart.Config{Factory: common.HexToAddress(sc.FactoryAddress), InitCodeHash: hash}, nil
}

// Find returns the descriptor with id, suggesting the closest id on a miss.
func Find(list []*wallet.Descriptor, id string) (*wallet.Descriptor, error) {
	for _, d := range list {
		if d.ID == id {
			return d, nil
		}
	}

	err := walleterr.Template(walleterr.ErrUnsupportedWallet, map[string]string{"walletId": id})
	if s := Suggest(list, id); s != "" {
		return nil, walleterr.WithSuggestion(err, fmt.Sprintf("Did you mean '%s'?", s))
	}
	return nil, walleterr.WithSuggestion(err, "Run 'walletlink wallets' to list supported wallets")
}

// Suggest returns the id closest to s, or "" when nothing is close.
func Suggest(list []*wallet.Descriptor, s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	best, bestDist := "", 3
	for _, d := range list {
		if dist := levenshtein.ComputeDistance(s, strings.ToLower(d.ID)); dist < bestDist {
			best, bestDist = d.ID, dist
		}
	}
	return best
}

// IDs returns the sorted wallet ids.
func IDs(list []*wallet.Descriptor) []string {
	out := make([]string, 0, len(list))
	for _, d := range list {
		out = append(out, d.ID)
	}
	sort.Strings(out)
	return out
}
