package modloader

import (
	"strings"
)

// eliza is a tiny reflection-based chatbot, good enough to exercise the
// full ACP prompt/response/cancel cycle without depending on an external
// process. It mirrors the simple substitution-and-reflection strategy of
// the classic program: swap pronouns, echo back a templated response.
type eliza struct {
	deterministic bool
	turn          int
}

func newEliza(deterministic bool) *eliza {
	return &eliza{deterministic: deterministic}
}

var reflections = map[string]string{
	"i":     "you",
	"me":    "you",
	"my":    "your",
	"am":    "are",
	"you":   "I",
	"your":  "my",
	"yours": "mine",
}

var templates = []string{
	"Why do you say that %s?",
	"How does that make you feel?",
	"Tell me more about %s.",
	"What makes you think %s?",
	"I see. Go on.",
}

// respond produces a reply to the given user text. Deterministic mode
// cycles templates in order instead of hashing on content, so tests get
// reproducible output.
func (e *eliza) respond(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "Please, go on."
	}

	reflected := reflect(text)

	var idx int
	if e.deterministic {
		idx = e.turn % len(templates)
		e.turn++
	} else {
		idx = len(text) % len(templates)
	}

	tmpl := templates[idx]
	if strings.Contains(tmpl, "%s") {
		return sprintfOne(tmpl, reflected)
	}
	return tmpl
}

func reflect(text string) string {
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		if r, ok := reflections[w]; ok {
			words[i] = r
		}
	}
	return strings.Join(words, " ")
}

func sprintfOne(tmpl, value string) string {
	i := strings.Index(tmpl, "%s")
	return tmpl[:i] + value + tmpl[i+2:]
}
