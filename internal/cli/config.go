package cli

import (
	"bytes"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/walletlink/internal/config"
	"github.com/mrz1836/walletlink/internal/fileutil"
	"github.com/mrz1836/walletlink/internal/output"
	"github.com/mrz1836/walletlink/internal/storage"
	walleterr "github.com/mrz1836/walletlink/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify walletlink configuration settings.`,
}

// configInitCmd initializes the configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.walletlink/config.yaml.

If a configuration file already exists, this command will not overwrite it
unless --force is specified.`,
	Example: `  walletlink config init
  walletlink config init --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd shows the current configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration, after environment overrides. Secrets are masked.`,
	Example: `  walletlink config show
  walletlink config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// configGetCmd gets a specific configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long: `Get a specific configuration value by its path.

The path uses dot notation with the YAML key names of the configuration file.`,
	Example: `  walletlink config get chains.active
  walletlink config get wallets.walletconnect.bridge
  walletlink config get logging.level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configSetCmd sets a configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value by its path.

The path uses dot notation with the YAML key names of the configuration file.
The configuration file will be updated immediately.`,
	Example: `  walletlink config set chains.active 137
  walletlink config set session.signer_wallet local
  walletlink config set storage.backend leveldb`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

// allowedValues restricts enumerated settings.
//
//nolint:gochecknoglobals // Static lookup table
var allowedValues = map[string][]string{
	"output.default_format": {"text", "json", "auto"},
	"output.color":          {"auto", "always", "never"},
	"logging.level":         {"off", "error", "debug"},
	"storage.backend": {
		storage.BackendFile, storage.BackendLevelDB, storage.BackendRedis,
		storage.BackendKeyring, storage.BackendMemory,
	},
}

// secretPaths are masked by config show.
//
//nolint:gochecknoglobals // Static lookup table
var secretPaths = []string{"storage.redis.password"}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configCmd.GroupID = "config"
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	enrichParentLong(configCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	c := GetCmdContext(cmd).Config
	configPath := config.Path(c.Home)

	if fileutil.Exists(configPath) && !configForce {
		return walleterr.WithSuggestion(
			walleterr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", configPath),
		)
	}

	defaults := config.Defaults()
	defaults.Home = c.Home
	defaults.Storage.Path = filepath.Join(c.Home, "storage")
	defaults.Logging.File = filepath.Join(c.Home, "walletlink.log")
	if err := config.Save(defaults, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - chains.active: Chain wallets connect to by default")
	outln(w, "  - wallets.frame_url / wallets.injected_url: JSON-RPC wallet endpoints")
	outln(w, "  - wallets.walletconnect.bridge: WalletConnect bridge server")
	outln(w, "  - storage.backend: Session storage (file/leveldb/redis/keyring/memory)")
	outln(w, "  - logging.level: Log level (off/error/debug)")
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	tree, err := configTree(cc.Config)
	if err != nil {
		return err
	}
	for _, p := range secretPaths {
		if v, ok := lookupPath(tree, p); ok && fmt.Sprint(v) != "" {
			_ = assignPath(tree, p, "********")
		}
	}

	if cc.Formatter.IsJSON() {
		return output.WriteJSON(cmd.OutOrStdout(), tree)
	}

	data, err := yaml.Marshal(tree)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	tree, err := configTree(GetCmdContext(cmd).Config)
	if err != nil {
		return err
	}

	v, ok := lookupPath(tree, args[0])
	if !ok {
		return unknownPath(args[0])
	}

	switch v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "%s", data)
	default:
		outln(cmd.OutOrStdout(), v)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, value := args[0], args[1]
	home := GetCmdContext(cmd).Config.Home
	configPath := config.Path(home)

	current, err := config.Load(configPath)
	if err != nil {
		current = config.Defaults()
		current.Home = home
	}

	updated, err := setConfigValue(current, path, value)
	if err != nil {
		return err
	}
	if err := config.Save(updated, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	out(cmd.OutOrStdout(), "Set %s = %s\n", path, value)
	return nil
}

// setConfigValue returns a copy of c with path set to value. The value is
// parsed as a YAML scalar, so numbers and booleans keep their types.
func setConfigValue(c *config.Config, path, value string) (*config.Config, error) {
	if allowed, ok := allowedValues[path]; ok && !slices.Contains(allowed, value) {
		return nil, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"path":  path,
			"value": value,
			"valid": strings.Join(allowed, ", "),
		})
	}

	tree, err := configTree(c)
	if err != nil {
		return nil, err
	}

	var parsed any = value
	var scalar any
	if err := yaml.Unmarshal([]byte(value), &scalar); err == nil && scalar != nil {
		switch scalar.(type) {
		case map[string]any, []any:
		default:
			parsed = scalar
		}
	}
	if err := assignPath(tree, path, parsed); err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(typedKeys(tree))
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	updated := config.Defaults()
	if err := dec.Decode(updated); err != nil {
		if strings.Contains(err.Error(), "not found in type") {
			return nil, unknownPath(path)
		}
		return nil, walleterr.WithDetails(walleterr.ErrInvalidInput, map[string]string{
			"path":   path,
			"value":  value,
			"reason": err.Error(),
		})
	}
	return updated, nil
}

// configTree renders c as nested maps keyed by YAML names.
func configTree(c *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return stringKeys(tree).(map[string]any), nil
}

// stringKeys converts maps with non-string keys, such as chain id keyed
// overrides, so every level can be addressed by a dot path.
func stringKeys(v any) any {
	switch m := v.(type) {
	case map[string]any:
		for k, child := range m {
			m[k] = stringKeys(child)
		}
		return m
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, child := range m {
			out[fmt.Sprint(k)] = stringKeys(child)
		}
		return out
	default:
		return v
	}
}

// typedKeys reverses stringKeys for integer keys so they decode into
// integer keyed maps.
func typedKeys(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[any]any, len(m))
	for k, child := range m {
		if n, err := strconv.ParseInt(k, 10, 64); err == nil {
			out[n] = typedKeys(child)
			continue
		}
		out[k] = typedKeys(child)
	}
	return out
}

func lookupPath(tree map[string]any, path string) (any, bool) {
	var cur any = tree
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// assignPath sets path in tree, creating intermediate maps. Unknown keys
// are rejected later when the tree is decoded back into a Config.
func assignPath(tree map[string]any, path string, value any) error {
	keys := strings.Split(path, ".")
	m := tree
	for _, key := range keys[:len(keys)-1] {
		next, ok := m[key]
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		nm, ok := next.(map[string]any)
		if !ok {
			return unknownPath(path)
		}
		m = nm
	}
	m[keys[len(keys)-1]] = value
	return nil
}

func unknownPath(path string) error {
	return walleterr.WithSuggestion(
		walleterr.ErrNotFound,
		fmt.Sprintf("configuration path '%s' not found; run 'walletlink config show' to list keys", path),
	)
}
