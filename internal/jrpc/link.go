package jrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrConnectionClosed is returned to any pending request, and from
// SendRequest/SendNotification, once a Link's read loop has exited.
var ErrConnectionClosed = errors.New("jrpc: connection closed")

// RequestHandler answers an incoming request with a result or an error.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// NotificationHandler reacts to an incoming notification; it cannot reply.
type NotificationHandler func(ctx context.Context, params json.RawMessage)

// Link is a bidirectional JSON-RPC peer, parameterized by a Role marker
// type purely so the Go compiler keeps a conductor→proxy Link and a
// proxy→agent Link from being accidentally interchanged at call sites;
// the marker carries no runtime behavior.
type Link[Role any] struct {
	framer *Framer
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]RequestHandler
	notifs   map[string]NotificationHandler

	pendingMu sync.Mutex
	pending   map[string]chan Message

	seenMu sync.Mutex
	seen   map[string]struct{}

	nextID atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLink constructs a Link over an already-framed transport. Call Connect
// to start its read loop.
func NewLink[Role any](framer *Framer, logger *slog.Logger) *Link[Role] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Link[Role]{
		framer:   framer,
		logger:   logger,
		handlers: make(map[string]RequestHandler),
		notifs:   make(map[string]NotificationHandler),
		pending:  make(map[string]chan Message),
		seen:     make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Handle registers a handler for incoming requests of the given method.
// Registration is guarded by the Link's mutex, so it may run alongside the
// read loop, but a request that arrives before its handler is registered
// is answered with method-not-found; register before Connect to avoid that.
func (l *Link[Role]) Handle(method string, h RequestHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[method] = h
}

// HandleNotification registers a handler for incoming notifications.
func (l *Link[Role]) HandleNotification(method string, h NotificationHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifs[method] = h
}

// Context returns the Link's lifetime context; it is cancelled when the
// read loop exits, propagating to anything Spawn-ed off of it.
func (l *Link[Role]) Context() context.Context { return l.ctx }

// Connect starts the read loop in a new goroutine. It returns immediately;
// use Done to wait for the loop to exit.
func (l *Link[Role]) Connect() {
	go l.readLoop()
}

// Done returns a channel closed once the read loop has exited.
func (l *Link[Role]) Done() <-chan struct{} { return l.done }

func (l *Link[Role]) readLoop() {
	defer close(l.done)
	defer l.cancel()
	defer l.drainPending()

	for {
		msg, err := l.framer.ReadMessage()
		if err != nil {
			if l.logger != nil && !errors.Is(err, context.Canceled) {
				l.logger.Debug("link read loop exiting", "error", err)
			}
			return
		}
		l.dispatch(msg)
	}
}

func (l *Link[Role]) dispatch(msg Message) {
	switch {
	case msg.IsResponse():
		l.resolvePending(msg)
	case msg.IsRequest():
		if !l.markRequestSeen(*msg.ID) {
			if l.logger != nil {
				l.logger.Warn("rejecting duplicate request id", "id", msg.ID.String(), "method", msg.Method)
			}
			_ = l.framer.WriteMessage(NewError(*msg.ID, CodeInvalidRequest, fmt.Sprintf("duplicate request id: %s", msg.ID.String())))
			return
		}
		go l.serveRequest(msg)
	case msg.IsNotification():
		l.mu.Lock()
		h, ok := l.notifs[msg.Method]
		l.mu.Unlock()
		if ok {
			h(l.ctx, msg.Params)
		} else if l.logger != nil {
			l.logger.Debug("no handler for notification", "method", msg.Method)
		}
	}
}

// requestIDKey is the context key RequestID stashes the inbound request's
// JSON-RPC id under, for handlers that need to correlate a later
// notification (e.g. a cancellation) back to the request they're serving.
type requestIDKey struct{}

// RequestID extracts the JSON-RPC id of the request currently being served
// from a context handed to a RequestHandler. Returns false outside of a
// request handler (e.g. inside a notification handler or a Spawn-ed task
// with no request in scope).
func RequestID(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(requestIDKey{}).(ID)
	return id, ok
}

// markRequestSeen records id as served and reports whether this is the
// first time this Link has seen it. A request id must be unique per
// origin peer for the connection's lifetime; reuse is a protocol
// violation the caller rejects with CodeInvalidRequest rather than
// serving twice.
func (l *Link[Role]) markRequestSeen(id ID) bool {
	key := id.String()
	l.seenMu.Lock()
	defer l.seenMu.Unlock()
	if _, ok := l.seen[key]; ok {
		return false
	}
	l.seen[key] = struct{}{}
	return true
}

func (l *Link[Role]) serveRequest(msg Message) {
	l.mu.Lock()
	h, ok := l.handlers[msg.Method]
	l.mu.Unlock()

	if !ok {
		_ = l.framer.WriteMessage(NewError(*msg.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", msg.Method)))
		return
	}

	ctx := context.WithValue(l.ctx, requestIDKey{}, *msg.ID)
	result, err := h(ctx, msg.Params)
	if err != nil {
		if eo, ok := err.(*ErrorObject); ok {
			_ = l.framer.WriteMessage(Message{JSONRPC: Version, ID: msg.ID, Error: eo})
			return
		}
		_ = l.framer.WriteMessage(NewError(*msg.ID, CodeInternalError, err.Error()))
		return
	}
	resp, err := NewResult(*msg.ID, result)
	if err != nil {
		_ = l.framer.WriteMessage(NewError(*msg.ID, CodeInternalError, err.Error()))
		return
	}
	_ = l.framer.WriteMessage(resp)
}

func (l *Link[Role]) resolvePending(msg Message) {
	key := msg.ID.String()
	l.pendingMu.Lock()
	ch, ok := l.pending[key]
	if ok {
		delete(l.pending, key)
	}
	l.pendingMu.Unlock()
	if ok {
		ch <- msg
	}
}

func (l *Link[Role]) drainPending() {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	for id, ch := range l.pending {
		delete(l.pending, id)
		close(ch)
	}
}

// SendRequest sends a request and blocks for its matching response,
// decoding the result into out (which may be nil to discard it).
func (l *Link[Role]) SendRequest(ctx context.Context, method string, params, out any) error {
	id := NewIntID(l.nextID.Add(1))
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}

	reply := make(chan Message, 1)
	key := id.String()
	l.pendingMu.Lock()
	l.pending[key] = reply
	l.pendingMu.Unlock()

	if err := l.framer.WriteMessage(req); err != nil {
		l.pendingMu.Lock()
		delete(l.pending, key)
		l.pendingMu.Unlock()
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case msg, ok := <-reply:
		if !ok {
			return ErrConnectionClosed
		}
		if msg.Error != nil {
			return msg.Error
		}
		if out == nil || len(msg.Result) == 0 {
			return nil
		}
		return json.Unmarshal(msg.Result, out)
	case <-ctx.Done():
		l.pendingMu.Lock()
		delete(l.pending, key)
		l.pendingMu.Unlock()
		return ctx.Err()
	case <-l.ctx.Done():
		return ErrConnectionClosed
	}
}

// SendNotification sends a one-way message with no reply.
func (l *Link[Role]) SendNotification(method string, params any) error {
	n, err := NewNotification(method, params)
	if err != nil {
		return err
	}
	return l.framer.WriteMessage(n)
}

// Close shuts down the underlying transport, which in turn unblocks and
// exits the read loop.
func (l *Link[Role]) Close() error {
	return l.framer.Close()
}

// Spawn runs fn in a new goroutine bound to the Link's lifetime context;
// fn should return promptly once ctx is cancelled.
func (l *Link[Role]) Spawn(fn func(ctx context.Context)) {
	go fn(l.ctx)
}
