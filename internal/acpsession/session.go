// Package acpsession holds the ACP session state machine shared between
// the editor-bridge session actor and any future ACP-native session owner.
// A Session is a conversation thread identified by an opaque SessionID,
// created by session/new and destroyed when its connection closes.
package acpsession

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// State is one point in a session's lifecycle:
//
//	New -> Initialized -> (Prompting <-> Idle) -> Cancelled | Closed
type State int

const (
	StateNew State = iota
	StateInitialized
	StateIdle
	StatePrompting
	StateCancelled
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInitialized:
		return "initialized"
	case StateIdle:
		return "idle"
	case StatePrompting:
		return "prompting"
	case StateCancelled:
		return "cancelled"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrInvalidTransition is returned when a transition method is called from
// a state that does not permit it.
var ErrInvalidTransition = errors.New("acpsession: invalid state transition")

// transitions maps each state to the set of states it may move to directly.
var transitions = map[State]map[State]bool{
	StateNew:         {StateInitialized: true},
	StateInitialized: {StateIdle: true, StateClosed: true},
	StateIdle:        {StatePrompting: true, StateClosed: true},
	StatePrompting:   {StateIdle: true, StateCancelled: true, StateClosed: true},
	StateCancelled:   {StateIdle: true, StateClosed: true},
	StateClosed:      {},
}

// NewID generates a fresh opaque session identifier.
func NewID() string {
	return uuid.NewString()
}

// Session is a single conversation thread: an opaque ID, the working
// directory the agent may read, the MCP-server launch descriptors injected
// at session/new, and the current lifecycle state. A Session owns no
// channels or goroutines itself — the bridge's SessionActor does, keyed by
// Session.ID — so it is safe to read from multiple goroutines as long as
// state transitions go through the methods below.
type Session struct {
	ID         string
	WorkingDir string
	McpServers []json.RawMessage

	mu    sync.Mutex
	state State
}

// New creates a session in StateNew and immediately advances it to
// StateInitialized, mirroring session/new's synchronous semantics: by the
// time the caller has a *Session, the session already exists.
func New(workingDir string, mcpServers []json.RawMessage) *Session {
	return &Session{
		ID:         NewID(),
		WorkingDir: workingDir,
		McpServers: mcpServers,
		state:      StateInitialized,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session to next if the table permits it, otherwise
// returns ErrInvalidTransition wrapping the attempted move.
func (s *Session) transition(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !transitions[s.state][next] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
	}
	s.state = next
	return nil
}

// MarkIdle moves the session into StateIdle, e.g. once session/new's
// response has been sent or a prompt/cancellation cycle has completed.
func (s *Session) MarkIdle() error { return s.transition(StateIdle) }

// BeginPrompt moves Idle -> Prompting when a session/prompt request
// arrives; its responder is the caller's responsibility to stash.
func (s *Session) BeginPrompt() error { return s.transition(StatePrompting) }

// EndPrompt moves Prompting -> Idle on a stop_reason response.
func (s *Session) EndPrompt() error { return s.transition(StateIdle) }

// Cancel moves Prompting -> Cancelled on an inbound session/cancel
// notification. The caller must still wait for the agent's prompt
// response, which is treated as the cancellation acknowledgement; on that
// acknowledgement the caller calls ResumeAfterCancel to return to Idle.
func (s *Session) Cancel() error { return s.transition(StateCancelled) }

// ResumeAfterCancel moves Cancelled -> Idle once the agent's prompt
// response arrives after a cancellation.
func (s *Session) ResumeAfterCancel() error { return s.transition(StateIdle) }

// Close moves the session to StateClosed from any non-terminal state, for
// connection teardown.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	if !transitions[s.state][StateClosed] {
		// Closed is reachable from every non-terminal state in practice;
		// force it rather than leaving a session stuck mid-teardown.
		s.state = StateClosed
		return nil
	}
	s.state = StateClosed
	return nil
}
