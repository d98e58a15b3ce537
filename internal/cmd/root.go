// Package cmd provides the symposium CLI commands.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pragmatic-rustacean/symposium/internal/logging"
)

var (
	logLevel      string
	logComponents string
	logFile       string
)

// rootCmd is the base command when symposium is called with no subcommand.
var rootCmd = &cobra.Command{
	Use:   "symposium",
	Short: "Symposium - ACP proxy/agent orchestration middleware",
	Long: `Symposium sits on the wire between a code editor and one or more
downstream ACP agents, interposing a chain of capability-enriching
proxies that add tools, rewrite traffic, or mediate permissions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var components []string
		if logComponents != "" {
			for _, c := range strings.Split(logComponents, ",") {
				c = strings.TrimSpace(c)
				if c != "" {
					components = append(components, c)
				}
			}
		}

		effectiveLevel := logLevel
		if effectiveLevel == "" {
			effectiveLevel = "info"
		}

		if err := logging.Initialize(logging.Config{
			Level:      effectiveLevel,
			LogFile:    logFile,
			Components: components,
		}); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g. 'conductor,bridge'). Empty means all.")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path (logs are also written to stderr)")
}
