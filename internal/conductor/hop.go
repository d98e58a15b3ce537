package conductor

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pragmatic-rustacean/symposium/internal/jrpc"
	"github.com/pragmatic-rustacean/symposium/internal/modloader"
	"github.com/pragmatic-rustacean/symposium/internal/modsource"
)

// hop is one resolved mod in the chain: a subprocess or in-process
// component, framed for the conductor's relay pump. The conductor
// exclusively owns hop, closing it on chain teardown.
type hop struct {
	name   string
	framer *jrpc.Framer
	kill   func() error
	wait   func() error
}

// multiCloser closes every closer in order, returning the first error.
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

// newHop resolves src and frames whatever modloader hands back.
func newHop(ctx context.Context, name string, src modsource.Source, opts modloader.Options, logger *slog.Logger) (*hop, error) {
	runnable, err := modloader.Resolve(ctx, src, opts)
	if err != nil {
		return nil, err
	}

	switch {
	case runnable.Process != nil:
		p := runnable.Process
		closer := multiCloser{p.Stdin, p.Stdout}
		framer := jrpc.NewFramerRW(p.Stdout, p.Stdin, closer, logger)
		if p.Wait != nil {
			go func() {
				if err := p.Wait(); err != nil && logger != nil {
					logger.Debug("hop process exited", "hop", name, "error", err)
				}
			}()
		}
		return &hop{name: name, framer: framer, kill: p.Kill, wait: p.Wait}, nil
	case runnable.InProcess != nil:
		framer := jrpc.NewFramer(runnable.InProcess, logger)
		return &hop{name: name, framer: framer}, nil
	case runnable.Endpoint != nil:
		return nil, fmt.Errorf("conductor: %s resolved to a remote MCP endpoint, not a chain hop (use it as an mcp_servers entry)", name)
	default:
		return nil, fmt.Errorf("conductor: %s resolved to nothing runnable", name)
	}
}

// Close tears down the hop's underlying process or in-process component.
func (h *hop) Close() error {
	if h.kill != nil {
		_ = h.kill()
	}
	return h.framer.Close()
}

// leg is one side of a relay pair: either the client connection or a hop.
type leg struct {
	name   string
	framer *jrpc.Framer
}
