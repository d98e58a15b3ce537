package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pragmatic-rustacean/symposium/internal/modloader"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the ACP agent/extension registry",
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := modloader.ListAgents(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

var registryListExtensionsCmd = &cobra.Command{
	Use:   "list-extensions",
	Short: "List known proxy extensions",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := modloader.ListExtensions(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

var registryResolveCmd = &cobra.Command{
	Use:   "resolve <agent-id>",
	Short: "Resolve an agent id to a launchable mod descriptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := modloader.ResolveAgentID(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("resolve %s: %w", args[0], err)
		}
		return printJSON(src)
	},
}

func init() {
	registryCmd.AddCommand(registryListCmd, registryListExtensionsCmd, registryResolveCmd)
	rootCmd.AddCommand(registryCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
