// Package chains holds the read-only chain metadata table used to default
// chain options and to describe chains to wallets that need to add them.
package chains

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// ClientIDPlaceholder is replaced with the configured client id in RPC URLs.
const ClientIDPlaceholder = "${CLIENT_ID}"

//go:embed chains.yaml
var tableYAML []byte

// Currency describes a chain's native currency.
type Currency struct {
	Name     string `yaml:"name" json:"name"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals int    `yaml:"decimals" json:"decimals"`
}

// Explorer is a block explorer for a chain.
type Explorer struct {
	Name     string `yaml:"name" json:"name"`
	URL      string `yaml:"url" json:"url"`
	Standard string `yaml:"standard" json:"standard"`
}

// Chain is one row of the metadata table.
type Chain struct {
	ChainID        int64      `yaml:"chain_id" json:"chainId"`
	Chain          string     `yaml:"chain" json:"chain"`
	Name           string     `yaml:"name" json:"name"`
	ShortName      string     `yaml:"short_name" json:"shortName"`
	Slug           string     `yaml:"slug" json:"slug"`
	NativeCurrency Currency   `yaml:"native_currency" json:"nativeCurrency"`
	RPC            []string   `yaml:"rpc" json:"rpc"`
	Explorers      []Explorer `yaml:"explorers,omitempty" json:"explorers,omitempty"`
	InfoURL        string     `yaml:"info_url,omitempty" json:"infoURL,omitempty"`
	Testnet        bool       `yaml:"testnet" json:"testnet"`
}

// HexID returns the chain id in 0x-prefixed hex, as used by wallet RPC methods.
func (c Chain) HexID() string {
	return hexutil.EncodeUint64(uint64(c.ChainID)) //nolint:gosec // chain ids are positive
}

// RPCURLs returns the usable RPC URLs. Templated URLs are filled with
// clientID, or skipped when clientID is empty.
func (c Chain) RPCURLs(clientID string) []string {
	urls := make([]string, 0, len(c.RPC))
	for _, u := range c.RPC {
		if strings.Contains(u, ClientIDPlaceholder) {
			if clientID == "" {
				continue
			}
			u = strings.ReplaceAll(u, ClientIDPlaceholder, clientID)
		}
		urls = append(urls, u)
	}
	return urls
}

// ExplorerURLs returns the explorer base URLs.
func (c Chain) ExplorerURLs() []string {
	urls := make([]string, 0, len(c.Explorers))
	for _, e := range c.Explorers {
		urls = append(urls, e.URL)
	}
	return urls
}

// WithRPC returns a copy of c whose first RPC URL is url.
func (c Chain) WithRPC(url string) Chain {
	if url == "" {
		return c
	}
	rpc := make([]string, 0, len(c.RPC)+1)
	rpc = append(rpc, url)
	for _, u := range c.RPC {
		if u != url {
			rpc = append(rpc, u)
		}
	}
	c.RPC = rpc
	return c
}

// Minimal returns a placeholder for a chain id missing from the table.
func Minimal(id int64) Chain {
	return Chain{
		ChainID:        id,
		Name:           fmt.Sprintf("Chain %d", id),
		Slug:           strconv.FormatInt(id, 10),
		NativeCurrency: Currency{Name: "Ether", Symbol: "ETH", Decimals: 18},
	}
}

//nolint:gochecknoglobals // table is parsed once from embedded data
var (
	loadOnce sync.Once
	byID     map[int64]Chain
	bySlug   map[string]Chain
	ordered  []Chain
	loadErr  error
)

func load() {
	loadOnce.Do(func() {
		var rows []Chain
		if err := yaml.Unmarshal(tableYAML, &rows); err != nil {
			loadErr = fmt.Errorf("parsing chain table: %w", err)
			return
		}

		byID = make(map[int64]Chain, len(rows))
		bySlug = make(map[string]Chain, len(rows))
		for _, c := range rows {
			byID[c.ChainID] = c
			bySlug[c.Slug] = c
		}

		sort.Slice(rows, func(i, j int) bool { return rows[i].ChainID < rows[j].ChainID })
		ordered = rows
	})
}

// All returns every chain ordered by chain id.
func All() []Chain {
	load()
	out := make([]Chain, len(ordered))
	copy(out, ordered)
	return out
}

// Lookup returns the chain with the given id.
func Lookup(id int64) (Chain, error) {
	load()
	if loadErr != nil {
		return Chain{}, loadErr
	}
	c, ok := byID[id]
	if !ok {
		return Chain{}, notFound(strconv.FormatInt(id, 10))
	}
	return c, nil
}

// BySlug returns the chain with the given slug.
func BySlug(slug string) (Chain, error) {
	load()
	if loadErr != nil {
		return Chain{}, loadErr
	}
	c, ok := bySlug[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return Chain{}, notFound(slug)
	}
	return c, nil
}

// Resolve accepts a numeric chain id, a 0x hex chain id or a slug.
func Resolve(s string) (Chain, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") {
		id, err := hexutil.DecodeUint64(s)
		if err != nil {
			return Chain{}, notFound(s)
		}
		return Lookup(int64(id)) //nolint:gosec // chain ids fit in int64
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Lookup(id)
	}
	return BySlug(s)
}

// Suggest returns the closest known slug to s, or "" when nothing is close.
func Suggest(s string) string {
	load()
	s = strings.ToLower(strings.TrimSpace(s))

	best, bestDist := "", 3
	for _, c := range ordered {
		if d := levenshtein.ComputeDistance(s, c.Slug); d < bestDist {
			best, bestDist = c.Slug, d
		}
	}
	return best
}

func notFound(chain string) error {
	err := walleterr.Template(walleterr.ErrChainNotFound, map[string]string{"chain": chain})
	if s := Suggest(chain); s != "" {
		return walleterr.WithSuggestion(err, fmt.Sprintf("Did you mean '%s'?", s))
	}
	return walleterr.WithSuggestion(err, "Run 'walletlink chains' to list known chains")
}
