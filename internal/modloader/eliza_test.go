package modloader

import "testing"

func TestElizaDeterministicCyclesTemplates(t *testing.T) {
	bot := newEliza(true)
	first := bot.respond("I am worried about my tests")
	second := bot.respond("I am worried about my tests")
	if first == "" || second == "" {
		t.Fatal("expected non-empty responses")
	}
	if first == second {
		t.Error("deterministic mode should cycle through templates, not repeat the same one")
	}
}

func TestElizaReflectsPronouns(t *testing.T) {
	got := reflect("i am worried about my code")
	want := "you are worried about your code"
	if got != want {
		t.Errorf("reflect() = %q, want %q", got, want)
	}
}

func TestElizaEmptyInputPrompts(t *testing.T) {
	bot := newEliza(false)
	if got := bot.respond("   "); got != "Please, go on." {
		t.Errorf("respond(empty) = %q", got)
	}
}
