package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pragmatic-rustacean/symposium/internal/jrpc"
)

// editorRole marks the jrpc.Link a Connection holds to the editor, distinct
// from the per-session agentRole links HistoryActor's sessions each own.
type editorRole struct{}

// Connection is the editor-facing side of the bridge: one jrpc.Link
// speaking the private lm/* methods, backed by one HistoryActor that owns
// every session actor this editor's requests have touched. One Connection
// exists per editor process connection (e.g. one VS Code window).
type Connection struct {
	link    *jrpc.Link[editorRole]
	history *HistoryActor
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight map[string]chan struct{} // requestId -> cancel channel
}

// NewConnection wires an editor-facing link to a HistoryActor that creates
// sessions via newSession. The caller must call Connect() on the returned
// Connection's underlying transport separately — NewConnection only
// registers handlers, following the same two-step convention as
// NewSessionActor.
func NewConnection(editorFramer *jrpc.Framer, newSession SessionFactory, logger *slog.Logger) *Connection {
	c := &Connection{
		link:     jrpc.NewLink[editorRole](editorFramer, logger),
		history:  NewHistoryActor(newSession, logger),
		logger:   logger,
		inFlight: make(map[string]chan struct{}),
	}

	c.link.Handle("lm/provideLanguageModelChatResponse", c.handleProvideResponse)
	c.link.HandleNotification("lm/cancel", c.handleCancel)

	return c
}

// Connect starts the editor link's read loop.
func (c *Connection) Connect() { c.link.Connect() }

// Done returns a channel closed once the editor link's read loop exits.
func (c *Connection) Done() <-chan struct{} { return c.link.Done() }

func (c *Connection) handleProvideResponse(ctx context.Context, params json.RawMessage) (any, error) {
	var req ProvideResponseRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("bridge: decode provideLanguageModelChatResponse: %w", err)
	}

	id, ok := jrpc.RequestID(ctx)
	if !ok {
		return nil, fmt.Errorf("bridge: no request id in context")
	}
	requestID := id.String()

	cancel := make(chan struct{})
	c.mu.Lock()
	c.inFlight[requestID] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, requestID)
		c.mu.Unlock()
	}()

	emit := func(part ContentPart) {
		_ = c.link.SendNotification("lm/responsePart", ResponsePartNotification{RequestID: requestID, Part: part})
	}

	err := c.history.HandleRequest(ctx, requestID, req.Messages, cancel, emit)
	if err != nil {
		if cancelled, ok := err.(*ErrCancelled); ok {
			return nil, &jrpc.ErrorObject{Code: jrpc.CodeCancelled, Message: cancelled.Error()}
		}
		return nil, err
	}

	_ = c.link.SendNotification("lm/responseComplete", ResponseCompleteNotification{RequestID: requestID})
	return ProvideResponseResponse{}, nil
}

func (c *Connection) handleCancel(ctx context.Context, params json.RawMessage) {
	var n CancelNotification
	if err := json.Unmarshal(params, &n); err != nil {
		return
	}
	c.mu.Lock()
	cancel, ok := c.inFlight[n.RequestID]
	c.mu.Unlock()
	if !ok {
		return
	}
	close(cancel)
}
