package bridge

import (
	"context"
	"testing"

	"github.com/pragmatic-rustacean/symposium/internal/jrpc"
	"github.com/pragmatic-rustacean/symposium/internal/modloader"
	"github.com/pragmatic-rustacean/symposium/internal/modsource"
)

func newElizaActor(t *testing.T) *SessionActor {
	t.Helper()
	run, err := modloader.Resolve(context.Background(), modsource.Source{
		Kind:    modsource.KindBuiltin,
		Builtin: &modsource.BuiltinSource{Name: "eliza-deterministic"},
	}, modloader.Options{})
	if err != nil {
		t.Fatalf("resolve eliza: %v", err)
	}
	framer := jrpc.NewFramer(run.InProcess, nil)
	link := jrpc.NewLink[agentRole](framer, nil)
	link.Connect()

	actor := NewSessionActor("sess-1", "/tmp/work", link, nil)
	actor.SetHasInternalTool(true)
	return actor
}

func TestSessionActorCompletesTurn(t *testing.T) {
	actor := newElizaActor(t)

	var parts []ContentPart
	cancel := make(chan struct{})
	err := actor.HandlePrompt(context.Background(), "req-1", []Message{
		{Role: RoleUser, Content: []ContentPart{TextPart("hello there")}},
	}, cancel, func(p ContentPart) { parts = append(parts, p) })
	if err != nil {
		t.Fatalf("HandlePrompt: %v", err)
	}
	if len(parts) == 0 {
		t.Error("expected at least one streamed part")
	}
	if len(actor.Provisional()) == 0 {
		t.Error("expected provisional history to record the assistant's reply")
	}
}

func TestSessionActorCancellation(t *testing.T) {
	actor := newElizaActor(t)

	cancel := make(chan struct{})
	close(cancel)

	err := actor.HandlePrompt(context.Background(), "req-1", []Message{
		{Role: RoleUser, Content: []ContentPart{TextPart("hello")}},
	}, cancel, func(ContentPart) {})

	if _, ok := err.(*ErrCancelled); !ok {
		t.Fatalf("HandlePrompt error = %v (%T), want *ErrCancelled", err, err)
	}
}

func TestSessionActorCommitAndDiscard(t *testing.T) {
	actor := newElizaActor(t)
	cancel := make(chan struct{})

	if err := actor.HandlePrompt(context.Background(), "req-1", []Message{
		{Role: RoleUser, Content: []ContentPart{TextPart("hi")}},
	}, cancel, func(ContentPart) {}); err != nil {
		t.Fatalf("HandlePrompt: %v", err)
	}
	if len(actor.Provisional()) == 0 {
		t.Fatal("expected provisional content after first turn")
	}

	actor.CommitProvisional()
	if len(actor.Committed()) == 0 {
		t.Error("expected committed history after CommitProvisional")
	}
	if len(actor.Provisional()) != 0 {
		t.Error("expected provisional to be empty after commit")
	}

	actor.DiscardProvisional()
	committedLen := len(actor.Committed())

	if err := actor.HandlePrompt(context.Background(), "req-2", []Message{
		{Role: RoleUser, Content: []ContentPart{TextPart("again")}},
	}, cancel, func(ContentPart) {}); err != nil {
		t.Fatalf("HandlePrompt: %v", err)
	}
	actor.DiscardProvisional()
	if len(actor.Committed()) != committedLen {
		t.Error("DiscardProvisional must not alter committed history")
	}
}

// The eliza agent never sends session/request_permission, so this checks
// only that a turn still completes without the internal tool; the
// auto-deny answer itself is not exercised here.
func TestSessionActorNoInternalToolCompletesTurn(t *testing.T) {
	actor := newElizaActor(t)
	actor.SetHasInternalTool(false)

	cancel := make(chan struct{})
	if err := actor.HandlePrompt(context.Background(), "req-1", []Message{
		{Role: RoleUser, Content: []ContentPart{TextPart("hi")}},
	}, cancel, func(ContentPart) {}); err != nil {
		t.Fatalf("HandlePrompt: %v", err)
	}
}
