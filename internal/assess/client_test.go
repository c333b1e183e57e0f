package assess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestStreamMessageRequiresSession(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, zerolog.Nop())
	err := c.StreamMessage(context.Background(), MessageRequest{ReportID: 1, Message: "hi"}, nil)
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("StreamMessage() error = %v, want ErrNoSession", err)
	}
	if requests.Load() != 0 {
		t.Fatalf("requests = %d, want 0 (no network call without a session)", requests.Load())
	}
}

func TestStreamMessageDeliversTokens(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/stream" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer secret")
		}
		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ChatID != 7 || req.ReportID != 3 || req.Message != "hello" {
			t.Errorf("unexpected request payload: %+v", req)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range []string{"{\"token\":\"Hel\"}", "{\"token\":\"lo\"}", "[DONE]"} {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL, zerolog.Nop(), WithTokenSource(NewStaticTokenSource("secret")))

	var tokens []string
	err := c.StreamMessage(context.Background(), MessageRequest{ReportID: 3, ChatID: 7, Message: "hello"}, func(token string) error {
		tokens = append(tokens, token)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamMessage() error = %v", err)
	}
	if got := strings.Join(tokens, ""); got != "Hello" {
		t.Fatalf("tokens = %q, want %q", got, "Hello")
	}
}

func TestStreamMessageHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, zerolog.Nop())
	err := c.StreamMessage(context.Background(), MessageRequest{ChatID: 1}, func(string) error { return nil })

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("StreamMessage() error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("StatusCode = %d, want %d", statusErr.StatusCode, http.StatusBadGateway)
	}
}

func TestCreateChatOmitsAuthWithoutToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want empty", got)
		}
		json.NewEncoder(w).Encode(CreateChatResponse{ChatID: 42, Message: "hello there"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, zerolog.Nop(), WithTokenSource(NewStaticTokenSource("")))
	res, err := c.CreateChat(context.Background(), 5)
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if res.ChatID != 42 || res.Message != "hello there" {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestEvaluatePathAndQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/chats/7/evaluate" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/chat/chats/7/evaluate")
		}
		if got := r.URL.Query().Get("report_id"); got != "3" {
			t.Errorf("report_id = %q, want %q", got, "3")
		}
		json.NewEncoder(w).Encode(Evaluation{ChatResult: "complete", ChatRisk: "low", Message: "ok"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, zerolog.Nop())
	eval, err := c.Evaluate(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if eval.ChatResult != "complete" || eval.ChatRisk != "low" {
		t.Fatalf("unexpected evaluation: %+v", eval)
	}
}

func TestFetchLogsSharedPath(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/logs/9" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/chat/logs/9")
		}
		fmt.Fprint(w, `[{"id":1,"chat_id":9,"role":"assistant","message":"hi"}]`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, zerolog.Nop())
	logs, err := c.LogsByChat(context.Background(), 9)
	if err != nil {
		t.Fatalf("LogsByChat() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Message != "hi" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}
