package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCommandDocumentation checks every command in the tree against the
// help conventions.
func TestCommandDocumentation(t *testing.T) {
	rules := []struct {
		name  string
		check func(cmd *cobra.Command) string
	}{
		{"use", func(cmd *cobra.Command) string {
			if cmd.Use == "" {
				return "missing Use"
			}
			return ""
		}},
		{"short", func(cmd *cobra.Command) string {
			if cmd.Short == "" || len(cmd.Short) > 80 {
				return "Short must be set and under 80 chars: " + cmd.Short
			}
			return ""
		}},
		{"long", func(cmd *cobra.Command) string {
			if cmd.Long == "" {
				return "missing Long"
			}
			if strings.Contains(cmd.Long, "\nExample:") || strings.Contains(cmd.Long, "\nExamples:") {
				return "Long embeds examples; use the Example field"
			}
			return ""
		}},
		{"example", func(cmd *cobra.Command) string {
			isLeaf := cmd.RunE != nil || cmd.Run != nil
			if isLeaf && cmd.Example == "" {
				return "leaf command missing Example"
			}
			if cmd.Example != "" && !strings.Contains(cmd.Example, "walletlink") {
				return "Example should show the full walletlink invocation"
			}
			return ""
		}},
		{"flags", func(cmd *cobra.Command) string {
			var missing []string
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				if f.Usage == "" {
					missing = append(missing, "--"+f.Name)
				}
			})
			if len(missing) > 0 {
				return "flags without usage: " + strings.Join(missing, ", ")
			}
			return ""
		}},
	}

	walkCommands(rootCmd, func(cmd *cobra.Command) {
		if cmd.HasParent() && !cmd.IsAvailableCommand() {
			return
		}
		for _, rule := range rules {
			if problem := rule.check(cmd); problem != "" {
				t.Errorf("%s [%s]: %s", cmd.CommandPath(), rule.name, problem)
			}
		}
	})
}

// TestCommandGroupsAssigned verifies all top-level commands (direct
// children of the root) have a GroupID set for organized help output.
func TestCommandGroupsAssigned(t *testing.T) {
	for _, cmd := range rootCmd.Commands() {
		if !cmd.IsAvailableCommand() {
			continue
		}
		t.Run(cmd.Name(), func(t *testing.T) {
			assert.NotEmpty(t, cmd.GroupID,
				"top-level command %q missing GroupID", cmd.Name())
		})
	}
}

// TestRootHelpContainsGroups verifies the root --help output shows the
// command groups rather than a flat "Available Commands:" list.
func TestRootHelpContainsGroups(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"--help"})

	err := rootCmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Session Operations:")
	assert.Contains(t, output, "Wallet Operations:")
	assert.Contains(t, output, "Security & Access:")
	assert.Contains(t, output, "Configuration:")
}

// TestParentCommandsShowSubcommandsInHelp verifies that parent commands
// show their subcommands in the rendered help output via Cobra's built-in
// "Available Commands:" section.
func TestParentCommandsShowSubcommandsInHelp(t *testing.T) {
	parentCmds := []struct {
		name string
		cmd  *cobra.Command
	}{
		{"chains", chainsCmd},
		{"config", configCmd},
	}

	for _, pc := range parentCmds {
		t.Run(pc.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			pc.cmd.SetOut(buf)
			require.NoError(t, pc.cmd.Help())
			helpOutput := buf.String()

			assert.Contains(t, helpOutput, "Available Commands:",
				"parent command %q missing Available Commands section", pc.name)
			assert.Contains(t, pc.cmd.Long, "Subcommands:")

			for _, sub := range pc.cmd.Commands() {
				if sub.IsAvailableCommand() {
					assert.Contains(t, helpOutput, sub.Name(),
						"parent %q missing subcommand %q in help", pc.name, sub.Name())
				}
			}
		})
	}
}

// TestLeafCommandHelpShowsExamplesSection verifies the rendered help
// output of a representative leaf command includes a labeled "Examples:"
// section from the Example field.
func TestLeafCommandHelpShowsExamplesSection(t *testing.T) {
	cmds := []*cobra.Command{
		connectCmd,
		statusCmd,
		switchChainCmd,
		configSetCmd,
	}

	for _, cmd := range cmds {
		t.Run(cmd.CommandPath(), func(t *testing.T) {
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)

			require.NoError(t, cmd.Help())
			helpOutput := buf.String()

			assert.Contains(t, helpOutput, "Examples:")
			assert.Contains(t, helpOutput, "walletlink")
		})
	}
}

// TestWalkCommandsVisitsAll verifies walkCommands discovers every command.
func TestWalkCommandsVisitsAll(t *testing.T) {
	var visited []string
	walkCommands(rootCmd, func(cmd *cobra.Command) {
		visited = append(visited, cmd.CommandPath())
	})

	expectedPaths := []string{
		"walletlink",
		"walletlink connect",
		"walletlink status",
		"walletlink switch-chain",
		"walletlink disconnect",
		"walletlink sign",
		"walletlink wallets",
		"walletlink chains",
		"walletlink chains show",
		"walletlink login",
		"walletlink logout",
		"walletlink config",
		"walletlink config init",
		"walletlink config show",
		"walletlink config get",
		"walletlink config set",
		"walletlink completion",
		"walletlink version",
	}

	for _, expected := range expectedPaths {
		assert.Contains(t, visited, expected,
			"walkCommands did not visit %q", expected)
	}
}

// newTestTree creates a minimal root -> parent -> children tree so that
// Cobra's IsAvailableCommand() returns true for children.
// newNoopRun returns a no-op Run function to make test commands "runnable" in Cobra.
func newNoopRun() func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {}
}

// TestEnrichParentLong verifies the enrichment function appends a correct
// subcommand list to a parent command.
func TestEnrichParentLong(t *testing.T) {
	parent := &cobra.Command{Use: "parent", Short: "Parent", Long: "Base description."}
	child1 := &cobra.Command{Use: "sub1", Short: "First subcommand", Run: newNoopRun()}
	child2 := &cobra.Command{Use: "sub2", Short: "Second subcommand", Run: newNoopRun()}
	parent.AddCommand(child1, child2)

	enrichParentLong(parent)

	assert.Contains(t, parent.Long, "Base description.")
	assert.Contains(t, parent.Long, "Subcommands:")
	assert.Contains(t, parent.Long, "sub1")
	assert.Contains(t, parent.Long, "First subcommand")
	assert.Contains(t, parent.Long, "sub2")
	assert.Contains(t, parent.Long, "Second subcommand")
}

// TestEnrichParentLong_NoSubcommands verifies enrichment is a no-op for
// leaf commands.
func TestEnrichParentLong_NoSubcommands(t *testing.T) {
	leaf := &cobra.Command{
		Use:   "leaf",
		Short: "A leaf",
		Long:  "Leaf description.",
	}

	enrichParentLong(leaf)

	assert.Equal(t, "Leaf description.", leaf.Long)
}

// TestEnrichParentLong_HiddenSubcommands verifies hidden subcommands are
// excluded from the dynamic subcommand list.
func TestEnrichParentLong_HiddenSubcommands(t *testing.T) {
	parent := &cobra.Command{Use: "parent", Short: "Parent", Long: "Parent desc."}
	visible := &cobra.Command{Use: "visible", Short: "Visible command", Run: newNoopRun()}
	hidden := &cobra.Command{Use: "hidden", Short: "Hidden command", Hidden: true, Run: newNoopRun()}
	parent.AddCommand(visible, hidden)

	enrichParentLong(parent)

	assert.Contains(t, parent.Long, "visible")
	assert.NotContains(t, parent.Long, "hidden")
}

// TestConnectFlags verifies the connect command registers its flags.
func TestConnectFlags(t *testing.T) {
	for _, name := range []string{"chain", "param", "personal", "qr-png"} {
		assert.NotNil(t, connectCmd.Flags().Lookup(name), "connect missing --%s", name)
	}
}

// TestHelpOutputContainsGlobalFlags verifies the rendered help for a
// leaf command includes inherited global flags.
func TestHelpOutputContainsGlobalFlags(t *testing.T) {
	buf := new(bytes.Buffer)
	statusCmd.SetOut(buf)
	_ = statusCmd.Help()
	output := buf.String()

	assert.Contains(t, output, "--home")
	assert.Contains(t, output, "--output")
	assert.Contains(t, output, "--verbose")
}
