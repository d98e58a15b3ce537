package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pragmatic-rustacean/symposium/internal/conductor"
	"github.com/pragmatic-rustacean/symposium/internal/config"
	"github.com/pragmatic-rustacean/symposium/internal/logging"
	"github.com/pragmatic-rustacean/symposium/internal/modloader"
	"github.com/pragmatic-rustacean/symposium/internal/modsource"
)

var (
	runWithProxies  []string
	runWithAgent    string
	runWithTraceDir string
)

var runWithCmd = &cobra.Command{
	Use:   "run-with",
	Short: "Run a one-off proxy chain over stdio",
	Long: `run-with builds a proxy chain from --proxy flags and serves it over
the calling process's own stdio.

Without --agent, it runs in proxy mode: the chain's last hop is expected
to be wired to an agent by whatever deployment launched this process.
With --agent, it runs in agent mode, launching the given agent as the
chain's terminal hop.`,
	RunE: runRunWith,
}

func init() {
	runWithCmd.Flags().StringArrayVar(&runWithProxies, "proxy", nil, "Proxy mod to include in the chain (repeatable, order matters). Known proxies: "+knownProxiesList()+". \"defaults\" expands to all of them.")
	runWithCmd.Flags().StringVar(&runWithAgent, "agent", "", "Agent to wrap: a JSON modsource.Source (e.g. from 'registry resolve') or a shell command string. Omit to run in proxy mode.")
	runWithCmd.Flags().StringVar(&runWithTraceDir, "trace-dir", "", "Directory to write JSONL wire traces to")
	rootCmd.AddCommand(runWithCmd)
}

func knownProxiesList() string {
	s := ""
	for i, name := range config.KnownProxies {
		if i > 0 {
			s += ", "
		}
		s += name
	}
	return s
}

func runRunWith(cmd *cobra.Command, args []string) error {
	names, err := config.ExpandProxyNames(runWithProxies)
	if err != nil {
		return err
	}
	proxies := make([]modsource.Source, 0, len(names))
	for _, name := range names {
		src, err := config.ProxySource(name)
		if err != nil {
			return err
		}
		proxies = append(proxies, src)
	}

	var agent *modsource.Source
	if runWithAgent != "" {
		src, err := parseAgentSpec(runWithAgent)
		if err != nil {
			return err
		}
		agent = &src
	}

	build := func(ctx context.Context, initReq json.RawMessage) (conductor.ChainResult, error) {
		return conductor.ChainResult{InitReq: initReq, Proxies: proxies, Agent: agent}, nil
	}

	opts := []conductor.Option{
		conductor.WithLoaderOptions(modloader.Options{Logger: logging.Modloader()}),
	}
	if runWithTraceDir != "" {
		opts = append(opts, conductor.WithTraceDir(runWithTraceDir))
	}

	var cond *conductor.Conductor
	if agent != nil {
		cond = conductor.NewAgent("run-with", build, conductor.ModeDefault, opts...)
	} else {
		cond = conductor.NewProxy("run-with", build, conductor.ModeDefault, opts...)
	}

	return cond.Serve(cmd.Context(), stdio{})
}

// parseAgentSpec accepts either a JSON-encoded modsource.Source (as
// produced by "symposium registry resolve") or a shell command string
// (parsed the way a configured agent command is).
func parseAgentSpec(spec string) (modsource.Source, error) {
	var src modsource.Source
	if err := json.Unmarshal([]byte(spec), &src); err == nil {
		if verr := src.Validate(); verr == nil {
			return src, nil
		}
	}

	args, err := config.ParseCommand(spec)
	if err != nil {
		return modsource.Source{}, fmt.Errorf("parse agent spec %q: %w", spec, err)
	}
	return modsource.Source{
		Kind:  modsource.KindLocal,
		Local: &modsource.LocalSource{Command: args[0], Args: args[1:]},
	}, nil
}
