package relay

import (
	"strings"
	"testing"
)

func TestResponderReplySequence(t *testing.T) {
	r := NewResponder()

	if got := r.Reply(0); got != r.Greeting() {
		t.Fatalf("Reply(0) = %q, want greeting", got)
	}
	for i, want := range r.prompts {
		if got := r.Reply(i + 1); got != want {
			t.Fatalf("Reply(%d) = %q, want %q", i+1, got, want)
		}
	}
	if got := r.Reply(len(r.prompts) + 1); got != r.closing {
		t.Fatalf("Reply past prompts = %q, want closing", got)
	}
}

func TestResponderEvaluate(t *testing.T) {
	r := NewResponder()

	result, risk, _ := r.Evaluate(len(r.prompts) - 1)
	if result != "incomplete" || risk != "unknown" {
		t.Fatalf("early Evaluate() = %q, %q, want incomplete, unknown", result, risk)
	}

	result, risk, _ = r.Evaluate(len(r.prompts))
	if result != "complete" || risk != "low" {
		t.Fatalf("Evaluate() = %q, %q, want complete, low", result, risk)
	}
}

func TestTokenizeRoundTrip(t *testing.T) {
	r := NewResponder()
	for _, text := range append(append([]string{r.greeting, r.closing}, r.prompts...), "single") {
		if got := strings.Join(tokenize(text), ""); got != text {
			t.Fatalf("tokenize round trip = %q, want %q", got, text)
		}
	}
	if got := tokenize(""); got != nil {
		t.Fatalf("tokenize(\"\") = %v, want nil", got)
	}
}
