package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pragmatic-rustacean/symposium/internal/acpsession"
	"github.com/pragmatic-rustacean/symposium/internal/jrpc"
)

// textSanitizer strips any HTML an agent's text output might carry before
// it reaches an editor's chat pane, which renders ResponsePart text
// directly rather than as sandboxed markdown.
var textSanitizer = bluemonday.StrictPolicy()

// agentRole marks the jrpc.Link a SessionActor holds to its downstream ACP
// agent, distinct from any link the conductor or another component holds.
type agentRole struct{}

// sessionUpdate is the subset of an ACP session/update notification the
// bridge cares about, decoded generically (see modloader's builtin agent
// for the same convention) rather than through the full ACP schema, since
// the bridge only needs to render a handful of update kinds as text.
type sessionUpdate struct {
	SessionUpdate string `json:"sessionUpdate"`
	Content       struct {
		Type string `json:"type"`
		Text string `json:"text"`
		URI  string `json:"uri"`
		Mime string `json:"mimeType"`
	} `json:"content"`
	ToolCall struct {
		ToolCallID string `json:"toolCallId"`
		Title      string `json:"title"`
		Status     string `json:"status"`
	} `json:"toolCall"`
}

// permissionRequest is session/request_permission's params, decoded
// generically for the same reason as sessionUpdate above.
type permissionRequest struct {
	ToolCall struct {
		ToolCallID string          `json:"toolCallId"`
		Title      string          `json:"title"`
		Kind       string          `json:"kind"`
		RawInput   json.RawMessage `json:"rawInput"`
	} `json:"toolCall"`
	Options []PermissionOption `json:"options"`
}

// PermissionOption is one of the choices an agent offers alongside a
// permission request.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
}

// pendingPermission parks an in-flight session/request_permission handler
// goroutine (see jrpc.Link.serveRequest) until the next editor turn either
// cancels it or supplies a tool-result continuation.
type pendingPermission struct {
	toolCallID string
	options    []PermissionOption
	resolve    chan permissionOutcome
}

type permissionOutcome struct {
	cancelled bool
	optionID  string
}

// turn tracks one outstanding session/prompt call across however many
// editor round-trips it takes to resolve (a single permission bridge
// round-trip suspends the turn without finishing the agent's prompt call).
type turn struct {
	requestID string
	promptErr chan error
	pending   *pendingPermission
}

// SessionActor is one per ACP session: it owns the downstream agent link,
// the committed/provisional conversation record, and at most one
// in-flight turn. Turns are run one at a time by its mailbox goroutine;
// the committed/provisional history and the active turn are guarded by mu,
// since HistoryActor reads the history from its own goroutine.
type SessionActor struct {
	id         string
	workingDir string
	agent      *jrpc.Link[agentRole]
	sessionID  string
	session    *acpsession.Session
	logger     *slog.Logger

	updates      chan sessionUpdate
	permissionRq chan *pendingPermission

	mailbox chan actorRequest

	// hasInternalTool gates permission bridging: an editor that never
	// registered the bridge's internal approve/deny tool can't be shown a
	// ToolCall part, so every permission request auto-denies instead of
	// parking (see SetHasInternalTool).
	hasInternalTool bool

	// policy, if set, is consulted before the bridging path: a matching
	// rule picks the option directly with no editor round trip at all.
	policy    *Policy
	agentName string

	mu          sync.Mutex
	committed   []Message
	provisional []Message
	active      *turn
}

// SetHasInternalTool records whether the editor on the other end of this
// session registered the bridge's internal permission tool. Call once
// before the first HandlePrompt.
func (a *SessionActor) SetHasInternalTool(v bool) { a.hasInternalTool = v }

// SetPolicy installs auto-approval rules and the agent name rules can
// match against. Call once before the first HandlePrompt.
func (a *SessionActor) SetPolicy(p *Policy, agentName string) {
	a.policy = p
	a.agentName = agentName
}

// actorRequest is one HandlePrompt call's mailbox entry.
type actorRequest struct {
	ctx       context.Context
	requestID string
	messages  []Message // the new tail only, not full history
	cancel    <-chan struct{}
	emit      func(ContentPart)
	done      chan error
}

// NewAgentLink wraps a downstream agent's transport in the jrpc.Link role
// NewSessionActor expects, letting callers outside this package (the CLI's
// vscodelm command resolves and launches the agent process itself) build
// one without reaching into agentRole, which stays unexported so a
// SessionActor can never be handed a Link of the wrong hop kind.
func NewAgentLink(framer *jrpc.Framer, logger *slog.Logger) *jrpc.Link[agentRole] {
	return jrpc.NewLink[agentRole](framer, logger)
}

// NewSessionActor creates a session actor bound to agent. agent must not be
// Connect()-ed yet: NewSessionActor registers the notification and request
// handlers it needs, and the caller is expected to call agent.Connect()
// immediately afterward.
func NewSessionActor(id, workingDir string, agent *jrpc.Link[agentRole], logger *slog.Logger) *SessionActor {
	a := &SessionActor{
		id:           id,
		workingDir:   workingDir,
		agent:        agent,
		logger:       logger,
		updates:      make(chan sessionUpdate, 16),
		permissionRq: make(chan *pendingPermission, 1),
		mailbox:      make(chan actorRequest),
	}

	agent.HandleNotification("session/update", func(ctx context.Context, params json.RawMessage) {
		var wrapper struct {
			Update sessionUpdate `json:"update"`
		}
		if err := json.Unmarshal(params, &wrapper); err != nil {
			if a.logger != nil {
				a.logger.Warn("malformed session/update", "error", err)
			}
			return
		}
		select {
		case a.updates <- wrapper.Update:
		default:
			if a.logger != nil {
				a.logger.Warn("session/update dropped, bridge not consuming", "session", a.id)
			}
		}
	})

	agent.Handle("session/request_permission", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req permissionRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		if a.policy != nil {
			if optionID, matched := a.policy.Evaluate(req.ToolCall.Kind, req.ToolCall.Title, a.agentName); matched {
				if optionID == "" {
					return map[string]any{"outcome": map[string]any{"cancelled": map[string]any{}}}, nil
				}
				return map[string]any{"outcome": map[string]any{"selected": map[string]any{"optionId": optionID}}}, nil
			}
		}
		if !a.hasInternalTool {
			return map[string]any{"outcome": map[string]any{"cancelled": map[string]any{}}}, nil
		}
		p := &pendingPermission{
			toolCallID: req.ToolCall.ToolCallID,
			options:    req.Options,
			resolve:    make(chan permissionOutcome, 1),
		}
		a.permissionRq <- p
		outcome := <-p.resolve
		if outcome.cancelled {
			return map[string]any{"outcome": map[string]any{"cancelled": map[string]any{}}}, nil
		}
		return map[string]any{"outcome": map[string]any{"selected": map[string]any{"optionId": outcome.optionID}}}, nil
	})

	go a.run()
	return a
}

func (a *SessionActor) run() {
	for req := range a.mailbox {
		a.process(req)
	}
}

// ensureSession sends session/new if this actor hasn't yet.
func (a *SessionActor) ensureSession(ctx context.Context) error {
	if a.sessionID != "" {
		return nil
	}
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := a.agent.SendRequest(ctx, "session/new", map[string]any{
		"cwd":        a.workingDir,
		"mcpServers": []any{},
	}, &resp); err != nil {
		return fmt.Errorf("bridge: session/new: %w", err)
	}
	a.sessionID = resp.SessionID
	a.session = acpsession.New(a.workingDir, nil)
	return a.session.MarkIdle()
}

// HandlePrompt enqueues a turn and blocks until it resolves: either the
// agent completes the turn, the caller cancels it, or (mid-permission
// bridge) the turn suspends pending the next HandlePrompt call carrying
// either a cancellation or a tool-result continuation for the pending
// permission. A nil return in the suspended case still means "send
// ResponseComplete now" — the editor UI needs to regain control to show
// the approve/deny prompt the emitted ToolCall part represents.
func (a *SessionActor) HandlePrompt(ctx context.Context, requestID string, newMessages []Message, cancel <-chan struct{}, emit func(ContentPart)) error {
	req := actorRequest{ctx: ctx, requestID: requestID, messages: newMessages, cancel: cancel, emit: emit, done: make(chan error, 1)}
	a.mailbox <- req
	return <-req.done
}

// Committed returns a snapshot of the session's committed history.
func (a *SessionActor) Committed() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.committed...)
}

// Provisional returns a snapshot of the session's provisional (unconfirmed)
// history.
func (a *SessionActor) Provisional() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.provisional...)
}

// CommitProvisional folds provisional into committed. Called by the
// history actor once the editor's next request proves it accepted the
// prior turn's output.
func (a *SessionActor) CommitProvisional() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.committed = append(a.committed, a.provisional...)
	a.provisional = nil
}

// DiscardProvisional drops provisional without committing it. Called when
// the history actor determines the editor rejected the prior turn.
func (a *SessionActor) DiscardProvisional() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.provisional = nil
}

func (a *SessionActor) appendProvisional(msg Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.provisional); n > 0 && a.provisional[n-1].Role == msg.Role && msg.Role == RoleAssistant {
		a.provisional[n-1].Content = append(a.provisional[n-1].Content, msg.Content...)
		return
	}
	a.provisional = append(a.provisional, msg)
}

// process runs one mailbox entry. If a.active is non-nil on entry, this
// call is a continuation of a permission-bridge round trip rather than a
// fresh prompt.
func (a *SessionActor) process(req actorRequest) {
	if a.active != nil {
		a.continueTurn(req)
		return
	}
	a.startTurn(req)
}

func (a *SessionActor) startTurn(req actorRequest) {
	for _, m := range req.messages {
		a.appendProvisional(m)
	}
	if allBlank(req.messages) {
		req.done <- nil
		return
	}

	if err := a.ensureSession(req.ctx); err != nil {
		req.done <- err
		return
	}
	if err := a.session.BeginPrompt(); err != nil {
		req.done <- err
		return
	}

	prompt := a.promptParams(req.messages)
	promptErr := make(chan error, 1)
	go func() {
		var result struct {
			StopReason string `json:"stopReason"`
		}
		promptErr <- a.agent.SendRequest(req.ctx, "session/prompt", prompt, &result)
	}()

	a.active = &turn{requestID: req.requestID, promptErr: promptErr}
	a.drive(req)
}

func (a *SessionActor) continueTurn(req actorRequest) {
	t := a.active
	pending := t.pending
	t.pending = nil

	cancelled := isCancellationTail(req.messages, pending.toolCallID)
	if cancelled {
		pending.resolve <- permissionOutcome{cancelled: true}
	} else {
		optionID := ""
		for _, m := range req.messages {
			for _, p := range m.Content {
				if p.ToolResult != nil && p.ToolResult.ToolCallID == pending.toolCallID {
					optionID = firstAllowOption(pending.options)
				}
			}
		}
		pending.resolve <- permissionOutcome{optionID: optionID}
	}

	a.drive(req)
}

// drive pumps session/update notifications and the pending permission
// channel until the turn either completes, suspends on a new permission
// request, or is cancelled.
func (a *SessionActor) drive(req actorRequest) {
	t := a.active
	for {
		select {
		case u := <-a.updates:
			part, ok := convertUpdate(u)
			if !ok {
				continue
			}
			a.appendProvisional(Message{Role: RoleAssistant, Content: []ContentPart{part}})
			req.emit(part)
		case p := <-a.permissionRq:
			t.pending = p
			part := ContentPart{ToolCall: &ToolCall{ID: p.toolCallID, Kind: "permission", Title: permissionTitle(p)}}
			a.appendProvisional(Message{Role: RoleAssistant, Content: []ContentPart{part}})
			req.emit(part)
			req.done <- nil
			return
		case err := <-t.promptErr:
			a.drainUpdates(req)
			_ = a.session.EndPrompt()
			a.active = nil
			req.done <- err
			return
		case <-req.cancel:
			_ = a.session.Cancel()
			_ = a.agent.SendNotification("session/cancel", map[string]any{"sessionId": a.sessionID})
			<-t.promptErr
			a.discardStaleUpdates()
			_ = a.session.ResumeAfterCancel()
			a.active = nil
			req.done <- &ErrCancelled{RequestID: req.requestID}
			return
		}
	}
}

// drainUpdates flushes any session/update notifications already buffered
// by the time the prompt response arrives. The agent link delivers
// updates and the final response over the same ordered stream, but the
// buffering channel between them means a response's select case can
// become ready before every preceding update has been read; without this,
// the last few streamed chunks of a turn would be silently dropped.
func (a *SessionActor) drainUpdates(req actorRequest) {
	for {
		select {
		case u := <-a.updates:
			if part, ok := convertUpdate(u); ok {
				a.appendProvisional(Message{Role: RoleAssistant, Content: []ContentPart{part}})
				req.emit(part)
			}
		default:
			return
		}
	}
}

// discardStaleUpdates drops any session/update notifications already
// buffered by the time a cancel's promptErr resolves, instead of
// forwarding them. Unlike drainUpdates, a cancel acknowledgement means the
// caller has moved on: updates the agent emitted between the cancel
// notification and its ack belong to a turn the editor no longer cares
// about, and the mailbox loop accepts the next HandlePrompt immediately
// after this returns. Forwarding them would attribute stale content to the
// next turn instead.
func (a *SessionActor) discardStaleUpdates() {
	for {
		select {
		case u := <-a.updates:
			if a.logger != nil {
				a.logger.Warn("dropping session/update after cancel", "session", a.id, "update", u)
			}
		default:
			return
		}
	}
}

func (a *SessionActor) promptParams(messages []Message) map[string]any {
	var blocks []map[string]any
	for _, m := range messages {
		for _, p := range m.Content {
			if p.Text != nil {
				blocks = append(blocks, map[string]any{"type": "text", "text": *p.Text})
			}
		}
	}
	return map[string]any{"sessionId": a.sessionID, "prompt": blocks}
}

func allBlank(messages []Message) bool {
	for _, m := range messages {
		for _, p := range m.Content {
			if p.Text != nil && *p.Text != "" {
				return false
			}
			if p.ToolCall != nil || p.ToolResult != nil {
				return false
			}
		}
	}
	return true
}

// isCancellationTail reports whether the editor's next message list, given
// the outstanding permission request, represents a rejection rather than a
// tool-result continuation: no message carries a tool-result for the
// pending tool-call id.
func isCancellationTail(messages []Message, toolCallID string) bool {
	for _, m := range messages {
		for _, p := range m.Content {
			if p.ToolResult != nil && p.ToolResult.ToolCallID == toolCallID {
				return false
			}
		}
	}
	return true
}

func firstAllowOption(options []PermissionOption) string {
	for _, o := range options {
		if o.Kind == "allow_once" || o.Kind == "allow_always" {
			return o.OptionID
		}
	}
	if len(options) > 0 {
		return options[0].OptionID
	}
	return ""
}

func permissionTitle(p *pendingPermission) string {
	return fmt.Sprintf("Permission requested (%d option(s))", len(p.options))
}

// convertUpdate renders an ACP session/update into an editor ContentPart.
// Text chunks go through textSanitizer (HTML tags are stripped and
// characters such as & and ' come out HTML-escaped); everything else
// becomes a compact tag, matching the source's text-surface rendering for
// non-text blocks.
func convertUpdate(u sessionUpdate) (ContentPart, bool) {
	switch u.SessionUpdate {
	case "agent_message_chunk", "agent_thought_chunk":
		switch u.Content.Type {
		case "text":
			return TextPart(textSanitizer.Sanitize(u.Content.Text)), true
		case "image":
			return TextPart(fmt.Sprintf("[Image: %s]", u.Content.Mime)), true
		case "audio":
			return TextPart(fmt.Sprintf("[Audio: %s]", u.Content.Mime)), true
		case "resource", "resource_link":
			return TextPart(fmt.Sprintf("[Resource: %s]", u.Content.URI)), true
		default:
			return ContentPart{}, false
		}
	case "tool_call", "tool_call_update":
		return TextPart(fmt.Sprintf("[Tool: %s (%s)]", u.ToolCall.Title, u.ToolCall.Status)), true
	case "plan":
		return TextPart("[plan update]"), true
	default:
		return ContentPart{}, false
	}
}
