package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pragmatic-rustacean/symposium/internal/bridge"
	"github.com/pragmatic-rustacean/symposium/internal/config"
	"github.com/pragmatic-rustacean/symposium/internal/jrpc"
	"github.com/pragmatic-rustacean/symposium/internal/logging"
	"github.com/pragmatic-rustacean/symposium/internal/modloader"
)

var vscodelmTraceDir string

var vscodelmCmd = &cobra.Command{
	Use:   "vscodelm",
	Short: "Serve the lm/* language model bridge over stdio",
	Long: `vscodelm speaks the private lm/provideLanguageModelChatResponse and
lm/cancel methods over stdio, the protocol VS Code's language model API
extension host uses. Requests carry no session id: each one is routed to
the session whose history is the longest prefix of the request's
messages, and a request that matches no session launches a fresh
instance of the configured agent.`,
	RunE: runVscodelm,
}

func init() {
	vscodelmCmd.Flags().StringVar(&vscodelmTraceDir, "trace-dir", "", "Accepted but unused: vscodelm writes no wire traces")
	rootCmd.AddCommand(vscodelmCmd)
}

func runVscodelm(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		path, _ := config.Path()
		return fmt.Errorf("no config file found at %s; configure an agent before running vscodelm", path)
	}
	agentSrc, err := modloader.AgentSourceFromConfig(cfg)
	if err != nil {
		return err
	}

	logger := logging.Bridge()
	loaderOpts := modloader.Options{Logger: logging.Modloader()}

	sessionCounter := 0
	newSession := func(ctx context.Context) (*bridge.SessionActor, error) {
		runnable, err := modloader.Resolve(ctx, agentSrc, loaderOpts)
		if err != nil {
			return nil, fmt.Errorf("vscodelm: resolve agent: %w", err)
		}

		var framer *jrpc.Framer
		switch {
		case runnable.Process != nil:
			p := runnable.Process
			framer = jrpc.NewFramerRW(p.Stdout, p.Stdin, multiCloser{p.Stdin, p.Stdout}, logger)
			if p.Wait != nil {
				go p.Wait()
			}
		case runnable.InProcess != nil:
			framer = jrpc.NewFramer(runnable.InProcess, logger)
		default:
			return nil, fmt.Errorf("vscodelm: agent resolved to a remote endpoint, not a launchable process")
		}

		sessionCounter++
		id := fmt.Sprintf("vscodelm-%d", sessionCounter)
		agentLink := bridge.NewAgentLink(framer, logger)
		actor := bridge.NewSessionActor(id, "", agentLink, logger)
		agentLink.Connect()
		return actor, nil
	}

	editorFramer := jrpc.NewFramer(stdio{}, logger)
	conn := bridge.NewConnection(editorFramer, newSession, logger)
	conn.Connect()
	<-conn.Done()
	return nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
