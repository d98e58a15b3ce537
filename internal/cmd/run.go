package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pragmatic-rustacean/symposium/internal/conductor"
	"github.com/pragmatic-rustacean/symposium/internal/config"
	"github.com/pragmatic-rustacean/symposium/internal/logging"
	"github.com/pragmatic-rustacean/symposium/internal/modloader"
	"github.com/pragmatic-rustacean/symposium/internal/modsource"
	"github.com/pragmatic-rustacean/symposium/internal/runner"
)

var (
	runTraceDir string
	runSandbox  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured agent and proxy chain over stdio",
	Long: `run reads ~/.symposium/config.yaml (or $SYMPOSIUM_DIR/config.yaml) and
serves the configured proxy chain in front of the configured agent over
the calling process's own stdio.

There is no interactive setup here: create the config file by hand, or
use 'symposium run-with' to experiment with a chain without persisting
any configuration.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTraceDir, "trace-dir", "", "Directory to write JSONL wire traces to (overrides config)")
	runCmd.Flags().BoolVar(&runSandbox, "sandbox", true, "Launch the agent through the configured restricted runner, if any")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		path, _ := config.Path()
		return fmt.Errorf("no config file found at %s; create one (see 'symposium run-with' to experiment without one)", path)
	}

	proxies := make([]modsource.Source, 0, len(cfg.EnabledProxies()))
	for _, name := range cfg.EnabledProxies() {
		src, err := config.ProxySource(name)
		if err != nil {
			return err
		}
		proxies = append(proxies, src)
	}

	agent, err := modloader.AgentSourceFromConfig(cfg)
	if err != nil {
		return err
	}

	loaderOpts := modloader.Options{Logger: logging.Modloader()}
	if runSandbox {
		workspace, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve workspace: %w", err)
		}
		r, err := runner.NewRunner(cfg.RestrictedRunners, agentRunnersFor(cfg), nil, workspace, logging.Modloader())
		if err != nil {
			return fmt.Errorf("create restricted runner: %w", err)
		}
		loaderOpts.Launcher = r
	}

	build := func(ctx context.Context, initReq json.RawMessage) (conductor.ChainResult, error) {
		return conductor.ChainResult{InitReq: initReq, Proxies: proxies, Agent: &agent}, nil
	}

	opts := []conductor.Option{conductor.WithLoaderOptions(loaderOpts)}
	traceDir := cfg.TraceDir
	if runTraceDir != "" {
		traceDir = runTraceDir
	}
	if traceDir != "" {
		opts = append(opts, conductor.WithTraceDir(traceDir))
	}

	cond := conductor.NewAgent("run", build, conductor.ModeDefault, opts...)
	return cond.Serve(cmd.Context(), stdio{})
}

// agentRunnersFor looks up the per-agent restricted-runner overrides for
// the configured agent command, if any were given a name in cfg.Agents.
func agentRunnersFor(cfg *config.Config) map[string]*config.WorkspaceRunnerConfig {
	if ac, ok := cfg.Agents[cfg.Agent]; ok && ac != nil {
		return ac.RestrictedRunners
	}
	return nil
}
