package relay

import (
	"fmt"
	"strings"
)

// Responder produces the relay's scripted assistant side of a screening
// conversation. It is deterministic on purpose: the reply depends only on
// how many user turns the chat has recorded, so client behavior is
// reproducible in dev and tests. Real conversational evaluation lives in
// the production assessment service, not here.
type Responder struct {
	greeting string
	prompts  []string
	closing  string
}

func NewResponder() *Responder {
	return &Responder{
		greeting: "Hello! I'd like to ask a few questions about your day-to-day memory. Shall we begin?",
		prompts: []string{
			"Have you recently had trouble remembering appointments or important dates?",
			"Do you find yourself repeating questions or stories more often than before?",
			"Have you had difficulty finding the right word in conversation?",
			"Do familiar tasks, like preparing a meal, take noticeably more effort lately?",
			"Have you ever felt unsure about the day of the week or where you were?",
		},
		closing: "Thank you for sharing. That is everything I need; your answers will be reviewed together with the rest of your screening.",
	}
}

// Greeting is the assistant's opening turn for a fresh chat.
func (r *Responder) Greeting() string { return r.greeting }

// Reply returns the assistant turn following the nth user turn (1-based).
func (r *Responder) Reply(userTurns int) string {
	idx := userTurns - 1
	if idx < 0 {
		return r.greeting
	}
	if idx < len(r.prompts) {
		return r.prompts[idx]
	}
	return r.closing
}

// Complete reports whether enough user turns have been collected to evaluate.
func (r *Responder) Complete(userTurns int) bool {
	return userTurns >= len(r.prompts)
}

// Evaluate produces a deterministic evaluation outcome for a chat with the
// given number of user turns.
func (r *Responder) Evaluate(userTurns int) (result, risk, message string) {
	if !r.Complete(userTurns) {
		return "incomplete", "unknown",
			fmt.Sprintf("conversation has %d of %d answers; screening step not finished", userTurns, len(r.prompts))
	}
	return "complete", "low", "screening conversation evaluated"
}

// tokenize splits a reply into word-sized fragments for streaming, keeping
// trailing spaces attached so concatenation reproduces the original text.
func tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return strings.SplitAfter(text, " ")
}
