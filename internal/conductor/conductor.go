// Package conductor implements the multi-hop proxy chain that sits between
// an ACP client and a terminal agent. It fans one client connection
// through an ordered chain of mods — resolved lazily, on the connection's
// first initialize request — ending at an agent, mediating the ACP
// lifecycle and MCP-server injection along the way.
package conductor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pragmatic-rustacean/symposium/internal/jrpc"
	"github.com/pragmatic-rustacean/symposium/internal/logging"
	"github.com/pragmatic-rustacean/symposium/internal/modloader"
	"github.com/pragmatic-rustacean/symposium/internal/modsource"
)

// ChainResult is what a BuildChainFunc hands back: the (possibly rewritten)
// initialize request params to forward down the chain, the ordered proxy
// mods to spawn ahead of the terminal agent, and — in agent mode — the
// agent itself.
type ChainResult struct {
	// InitReq is the initialize request params to send to every hop. It
	// starts as the client's own params; a BuildChainFunc may rewrite it
	// (e.g. to trim a capability a proxy doesn't support).
	InitReq json.RawMessage
	// Proxies are spawned in order, client-side first.
	Proxies []modsource.Source
	// Agent terminates the chain. Nil in proxy mode, where the terminal
	// agent arrives from whatever the last proxy in Proxies wires up
	// externally (e.g. a bring-your-own-agent deployment).
	Agent *modsource.Source
}

// BuildChainFunc resolves the proxy chain to use for one connection, given
// the client's initialize request params. It runs exactly once per
// connection, on the first inbound initialize.
type BuildChainFunc func(ctx context.Context, initReq json.RawMessage) (ChainResult, error)

// Conductor fans one client connection through a lazily built chain of
// mods to a terminal agent.
type Conductor struct {
	name       string
	buildChain BuildChainFunc
	mcpMode    Mode
	traceDir   string
	loaderOpts modloader.Options
	logger     *slog.Logger
}

// Option configures optional Conductor behavior.
type Option func(*Conductor)

// WithTraceDir enables JSONL tracing of every wire-level message to
// <dir>/<timestamp>.jsons. A failure to create the directory or open the
// trace file is returned from the first Serve call.
func WithTraceDir(dir string) Option {
	return func(c *Conductor) { c.traceDir = dir }
}

// WithLoaderOptions sets the modloader.Options used to resolve and launch
// chain hops (cache directory, sandboxed launcher, logger).
func WithLoaderOptions(opts modloader.Options) Option {
	return func(c *Conductor) { c.loaderOpts = opts }
}

// WithLogger overrides the component logger used for relay diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conductor) { c.logger = logger }
}

func newConductor(name string, build BuildChainFunc, mode Mode, opts []Option) *Conductor {
	c := &Conductor{name: name, buildChain: build, mcpMode: mode, logger: logging.Conductor()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewProxy builds a Conductor whose build function supplies only the proxy
// hops that precede whatever terminal agent the deployment wires up
// downstream of this process.
func NewProxy(name string, build BuildChainFunc, mode Mode, opts ...Option) *Conductor {
	return newConductor(name, build, mode, opts)
}

// NewAgent builds a Conductor whose build function also owns the terminal
// agent (ChainResult.Agent must be non-nil).
func NewAgent(name string, build BuildChainFunc, mode Mode, opts ...Option) *Conductor {
	return newConductor(name, build, mode, opts)
}

// Serve runs the conductor over one client connection until it closes or
// ctx is cancelled, chaining together every resolved hop and relaying
// traffic between them. It blocks until the connection ends.
func (c *Conductor) Serve(ctx context.Context, client io.ReadWriteCloser) error {
	clientFramer := jrpc.NewFramer(client, c.logger)
	defer clientFramer.Close()

	var tracer *Tracer
	if c.traceDir != "" {
		t, err := newTracer(c.traceDir)
		if err != nil {
			return fmt.Errorf("conductor: %w", err)
		}
		tracer = t
		defer tracer.Close()
	}

	first, err := clientFramer.ReadMessage()
	if err != nil {
		return fmt.Errorf("conductor: read initialize: %w", err)
	}
	tracer.Write("down", "client", first)
	if !first.IsRequest() || first.Method != "initialize" {
		return fmt.Errorf("conductor: expected initialize as first message, got method %q", first.Method)
	}

	result, err := c.buildChain(ctx, first.Params)
	if err != nil {
		return fmt.Errorf("conductor: build chain: %w", err)
	}
	sources := append([]modsource.Source{}, result.Proxies...)
	if result.Agent != nil {
		sources = append(sources, *result.Agent)
	}
	if len(sources) == 0 {
		return fmt.Errorf("conductor: chain resolved with no hops")
	}

	hops := make([]*hop, 0, len(sources))
	defer func() {
		for _, h := range hops {
			_ = h.Close()
		}
	}()
	for i, src := range sources {
		h, err := newHop(ctx, fmt.Sprintf("%s[%d]", c.name, i), src, c.loaderOpts, c.logger)
		if err != nil {
			return fmt.Errorf("conductor: resolve hop %d: %w", i, err)
		}
		hops = append(hops, h)
	}

	req := first
	if len(result.InitReq) > 0 {
		req.Params = result.InitReq
	}
	initResp, err := c.handshake(req, hops, tracer)
	if err != nil {
		return fmt.Errorf("conductor: initialize handshake: %w", err)
	}
	if err := clientFramer.WriteMessage(initResp); err != nil {
		return fmt.Errorf("conductor: forward initialize response: %w", err)
	}
	tracer.Write("up", "client", initResp)

	legs := make([]*leg, 0, len(hops)+1)
	legs = append(legs, &leg{name: "client", framer: clientFramer})
	for _, h := range hops {
		legs = append(legs, &leg{name: h.name, framer: h.framer})
	}

	// Exactly one goroutine reads each leg's framer: pumpDown owns the
	// client leg, and one pumpUp owns each hop leg. Pairing adjacent legs
	// into independent up/down pumps (the previous scheme) gave every
	// non-terminal hop leg two concurrent readers — a data race on the
	// underlying Framer and a coin-flip over which neighbor a given
	// message actually reached.
	errCh := make(chan error, len(legs))
	go func() { errCh <- c.pumpDown(ctx, legs, tracer) }()
	for i := 1; i < len(legs); i++ {
		go func(i int) { errCh <- c.pumpUp(ctx, legs, i, tracer) }(i)
	}

	return <-errCh
}

// handshake calls each hop's initialize in sequence with the (possibly
// rewritten) request the chain builder produced, merging declared
// capabilities from every hop into the response the client ultimately
// sees. The terminal hop's response is the baseline; earlier hops may
// contribute additional top-level fields the terminal hop didn't set —
// this is a deliberate simplification of "concatenated capability lists"
// (see DESIGN.md) since the ACP capability schema has no generic union
// operation defined for it.
func (c *Conductor) handshake(first jrpc.Message, hops []*hop, tracer *Tracer) (jrpc.Message, error) {
	req := first
	var merged map[string]json.RawMessage
	var lastResp jrpc.Message

	for _, h := range hops {
		if err := h.framer.WriteMessage(req); err != nil {
			return jrpc.Message{}, fmt.Errorf("send initialize to %s: %w", h.name, err)
		}
		tracer.Write("down", h.name, req)

		resp, err := h.framer.ReadMessage()
		if err != nil {
			return jrpc.Message{}, fmt.Errorf("read initialize response from %s: %w", h.name, err)
		}
		tracer.Write("up", h.name, resp)
		if resp.Error != nil {
			return jrpc.Message{}, fmt.Errorf("%s rejected initialize: %w", h.name, resp.Error)
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(resp.Result, &fields); err == nil {
			if merged == nil {
				merged = make(map[string]json.RawMessage, len(fields))
			}
			for k, v := range fields {
				merged[k] = v
			}
		}
		lastResp = resp
	}

	result, err := json.Marshal(merged)
	if err != nil {
		return lastResp, nil
	}
	lastResp.Result = result
	return lastResp, nil
}

// pumpDown is the chain's sole "down" reader: it owns the client leg's
// read side and relays every message client→proxy₁→proxy₂→…→agent, in
// chain order, so every hop sees the traffic spec.md promises a full
// JSON-RPC peer ("client → agent direction ... each hop is a full JSON-RPC
// peer"). session/new's mcp_servers rewrite happens once here, before the
// message reaches the first hop.
func (c *Conductor) pumpDown(ctx context.Context, legs []*leg, tracer *Tracer) error {
	client := legs[0]
	for {
		msg, err := client.framer.ReadMessage()
		if err != nil {
			if c.logger != nil {
				c.logger.Debug("leg closed", "leg", client.name, "direction", "down", "error", err)
			}
			return jrpc.ErrConnectionClosed
		}
		tracer.Write("down", client.name, msg)

		if msg.IsRequest() && msg.Method == "session/new" {
			if rewritten, err := rewriteSessionNew(c.mcpMode, msg.Params); err == nil {
				msg.Params = rewritten
			} else if c.logger != nil {
				c.logger.Warn("mcp bridging rewrite failed", "error", err)
			}
		}

		for _, dst := range legs[1:] {
			if err := dst.framer.WriteMessage(msg); err != nil {
				return fmt.Errorf("relay %s -> %s: %w", client.name, dst.name, err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// pumpUp owns hop leg legs[i]'s read side and relays everything that hop
// emits straight back to the client: the response to a forwarded request,
// or anything the hop originates on its own — a notification, or an
// upstream-directed request like session/request_permission ("either side
// may originate traffic" per spec.md).
func (c *Conductor) pumpUp(ctx context.Context, legs []*leg, i int, tracer *Tracer) error {
	src := legs[i]
	client := legs[0]
	for {
		msg, err := src.framer.ReadMessage()
		if err != nil {
			if c.logger != nil {
				c.logger.Debug("leg closed", "leg", src.name, "direction", "up", "error", err)
			}
			return jrpc.ErrConnectionClosed
		}
		tracer.Write("up", src.name, msg)

		if err := client.framer.WriteMessage(msg); err != nil {
			return fmt.Errorf("relay %s -> %s: %w", src.name, client.name, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
