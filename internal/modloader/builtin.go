package modloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pragmatic-rustacean/symposium/internal/jrpc"
	"github.com/pragmatic-rustacean/symposium/internal/modsource"
)

// builtinRole marks a jrpc.Link as the agent side of a builtin, in-process
// hop (as opposed to a link to an external subprocess or passthrough).
type builtinRole struct{}

// resolveBuiltin looks up a compiled-in agent by name and wires it up to an
// in-memory duplex pipe the conductor can frame and talk ACP over exactly
// as it would a subprocess.
func resolveBuiltin(ctx context.Context, src modsource.BuiltinSource) (*Runnable, error) {
	switch src.Name {
	case "eliza":
		return startEliza(ctx, false), nil
	case "eliza-deterministic":
		return startEliza(ctx, true), nil
	default:
		return nil, fmt.Errorf("modloader: unknown builtin %q", src.Name)
	}
}

// duplexPipe glues two io.Pipe pairs into a single io.ReadWriteCloser for
// each side, the in-process equivalent of a subprocess's stdio.
type duplexPipe struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (d duplexPipe) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d duplexPipe) Write(p []byte) (int, error) { return d.w.Write(p) }
func (d duplexPipe) Close() error {
	_ = d.r.Close()
	return d.w.Close()
}

func startEliza(ctx context.Context, deterministic bool) *Runnable {
	agentR, conductorW := io.Pipe()
	conductorR, agentW := io.Pipe()

	agentSide := jrpc.NewFramerRW(agentR, agentW, multiCloser{agentR, agentW}, nil)
	link := jrpc.NewLink[builtinRole](agentSide, nil)

	bot := newEliza(deterministic)
	sessions := make(map[string]bool)

	link.Handle("initialize", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{
			"protocolVersion": 1,
			"agentCapabilities": map[string]any{
				"loadSession": false,
			},
		}, nil
	})

	link.Handle("session/new", func(ctx context.Context, params json.RawMessage) (any, error) {
		id := fmt.Sprintf("eliza-%d", len(sessions)+1)
		sessions[id] = true
		return map[string]string{"sessionId": id}, nil
	})

	link.Handle("session/prompt", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			SessionID string `json:"sessionId"`
			Prompt    []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"prompt"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}

		var userText string
		for _, block := range req.Prompt {
			if block.Type == "text" {
				userText += block.Text
			}
		}
		reply := bot.respond(userText)

		for _, chunk := range chunkString(reply, 5) {
			_ = link.SendNotification("session/update", map[string]any{
				"sessionId": req.SessionID,
				"update": map[string]any{
					"sessionUpdate": "agent_message_chunk",
					"content":       map[string]any{"type": "text", "text": chunk},
				},
			})
		}

		return map[string]string{"stopReason": "end_turn"}, nil
	})

	link.Handle("session/cancel", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{}, nil
	})

	link.Connect()

	return &Runnable{InProcess: duplexPipe{r: conductorR, w: conductorW}}
}

func chunkString(s string, size int) []string {
	runes := []rune(s)
	var chunks []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var firstErr error
	for _, c := range m {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
