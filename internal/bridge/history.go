package bridge

import (
	"context"
	"log/slog"
	"sync"
)

// SessionFactory creates a fresh SessionActor for a brand new conversation,
// i.e. one whose history matches no tracked session. The bridge connection
// supplies this so HistoryActor stays agent-agnostic.
type SessionFactory func(ctx context.Context) (*SessionActor, error)

// trackedSession pairs a SessionActor with the bookkeeping HistoryActor
// records for it: whether the session's most recent turn ended by
// cancellation. match does not read this flag; it decides whether a
// candidate counts as cancelled from the request's messages, and it
// prefers a non-cancelled candidate only between matches of equal length.
type trackedSession struct {
	actor     *SessionActor
	cancelled bool
}

// editorRequest is one ProvideResponseRequest's mailbox entry.
type editorRequest struct {
	ctx      context.Context
	id       string
	messages []Message
	cancel   <-chan struct{}
	emit     func(ContentPart)
	done     chan error
}

// HistoryActor owns every session actor for one bridge connection and
// routes each incoming editor request to the session whose committed (and
// possibly provisional) history is the longest prefix of the request's
// message list — the only way to address a session when the editor itself
// is stateless about which conversation a request belongs to.
type HistoryActor struct {
	newSession SessionFactory
	logger     *slog.Logger

	mailbox chan editorRequest

	mu       sync.Mutex
	sessions []*trackedSession
}

// NewHistoryActor starts a HistoryActor's mailbox loop and returns it.
func NewHistoryActor(newSession SessionFactory, logger *slog.Logger) *HistoryActor {
	h := &HistoryActor{newSession: newSession, logger: logger, mailbox: make(chan editorRequest)}
	go h.run()
	return h
}

func (h *HistoryActor) run() {
	for req := range h.mailbox {
		h.dispatch(req)
	}
}

// HandleRequest is lm/provideLanguageModelChatResponse's entry point: it
// blocks until the addressed session has either completed the turn,
// suspended on a permission bridge, or been cancelled.
func (h *HistoryActor) HandleRequest(ctx context.Context, id string, messages []Message, cancel <-chan struct{}, emit func(ContentPart)) error {
	req := editorRequest{ctx: ctx, id: id, messages: messages, cancel: cancel, emit: emit, done: make(chan error, 1)}
	h.mailbox <- req
	return <-req.done
}

func (h *HistoryActor) dispatch(req editorRequest) {
	ts, tail, cancelledMatch := h.match(req.messages)

	if ts == nil {
		actor, err := h.newSession(req.ctx)
		if err != nil {
			req.done <- err
			return
		}
		ts = &trackedSession{actor: actor}
		h.mu.Lock()
		h.sessions = append(h.sessions, ts)
		h.mu.Unlock()
		tail = req.messages
	} else if cancelledMatch {
		ts.actor.DiscardProvisional()
		ts.cancelled = false
	} else {
		ts.actor.CommitProvisional()
	}

	err := ts.actor.HandlePrompt(req.ctx, req.id, tail, req.cancel, req.emit)
	if _, ok := err.(*ErrCancelled); ok {
		ts.cancelled = true
	}
	req.done <- err
}

// match implements the longest-prefix session selection rule: among every
// tracked session whose committed history is a prefix of messages, pick
// the one with the most matched messages (counting through provisional
// too when the editor's list still contains it), preferring a
// non-cancelled match over a cancelled one of equal length.
func (h *HistoryActor) match(messages []Message) (ts *trackedSession, tail []Message, cancelledMatch bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var best *trackedSession
	var bestLen int
	var bestCancelled bool
	var bestTail []Message

	for _, s := range h.sessions {
		committed := s.actor.Committed()
		if !hasPrefix(messages, committed) {
			continue
		}
		provisional := s.actor.Provisional()
		full := append(append([]Message(nil), committed...), provisional...)
		matchedLen := len(committed)
		cancelled := true
		rest := messages[len(committed):]
		if hasPrefix(messages, full) {
			matchedLen = len(full)
			cancelled = false
			rest = messages[len(full):]
		}

		if best == nil || matchedLen > bestLen || (matchedLen == bestLen && bestCancelled && !cancelled) {
			best = s
			bestLen = matchedLen
			bestCancelled = cancelled
			bestTail = rest
		}
	}

	if best == nil {
		return nil, nil, false
	}
	return best, bestTail, bestCancelled
}

func hasPrefix(messages, prefix []Message) bool {
	if len(prefix) > len(messages) {
		return false
	}
	for i := range prefix {
		if !messages[i].equal(prefix[i]) {
			return false
		}
	}
	return true
}
