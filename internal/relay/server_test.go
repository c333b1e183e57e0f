package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lumocare/cogscreen/internal/assess"
	"github.com/lumocare/cogscreen/internal/observability"
	"github.com/lumocare/cogscreen/internal/store"
)

var metricsSeq atomic.Int64

// newTestServer spins up a relay over an in-memory store. Each server gets
// its own metrics namespace so registrations never collide across tests.
func newTestServer(t *testing.T) (*httptest.Server, *Responder) {
	t.Helper()
	metrics := observability.NewMetrics(fmt.Sprintf("relaytest%d", metricsSeq.Add(1)))
	responder := NewResponder()
	srv := New(store.NewInMemoryStore(), responder, metrics, true, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, responder
}

func createChat(t *testing.T, ts *httptest.Server, reportID int64) assess.CreateChatResponse {
	t.Helper()
	body, _ := json.Marshal(assess.CreateChatRequest{ReportID: reportID})
	res, err := http.Post(ts.URL+"/chat/create", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create chat status = %d", res.StatusCode)
	}
	var out assess.CreateChatResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return out
}

func TestCreateChatIdempotentPerReport(t *testing.T) {
	ts, responder := newTestServer(t)

	first := createChat(t, ts, 5)
	if first.ChatID == 0 {
		t.Fatalf("chat id not assigned")
	}
	if first.Message != responder.Greeting() {
		t.Fatalf("greeting = %q, want %q", first.Message, responder.Greeting())
	}

	second := createChat(t, ts, 5)
	if second.ChatID != first.ChatID {
		t.Fatalf("second create returned chat %d, want existing chat %d", second.ChatID, first.ChatID)
	}
}

func TestStreamDeliversScriptedReply(t *testing.T) {
	ts, responder := newTestServer(t)
	created := createChat(t, ts, 5)

	client := assess.NewClient(ts.URL, zerolog.Nop())
	var tokens []string
	err := client.StreamMessage(context.Background(), assess.MessageRequest{
		ReportID: 5,
		ChatID:   created.ChatID,
		Message:  "yes, let's begin",
	}, func(token string) error {
		tokens = append(tokens, token)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamMessage() error = %v", err)
	}

	if got := strings.Join(tokens, ""); got != responder.Reply(1) {
		t.Fatalf("streamed reply = %q, want %q", got, responder.Reply(1))
	}

	// Both the user turn and the streamed assistant turn must be persisted.
	logs, err := client.LogsByChat(context.Background(), created.ChatID)
	if err != nil {
		t.Fatalf("LogsByChat() error = %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("log count = %d, want 3 (greeting, user, assistant)", len(logs))
	}
	if logs[2].Role != "assistant" || logs[2].Message != responder.Reply(1) {
		t.Fatalf("persisted assistant turn = %+v", logs[2])
	}
}

func TestStreamRejectsUnknownChat(t *testing.T) {
	ts, _ := newTestServer(t)

	client := assess.NewClient(ts.URL, zerolog.Nop())
	err := client.StreamMessage(context.Background(), assess.MessageRequest{
		ChatID:  999,
		Message: "hello",
	}, func(string) error { return nil })

	var statusErr *assess.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("StreamMessage() error = %v, want 404 StatusError", err)
	}
}

func TestChatNonStreamedPath(t *testing.T) {
	ts, responder := newTestServer(t)
	created := createChat(t, ts, 8)

	body, _ := json.Marshal(assess.MessageRequest{ReportID: 8, ChatID: created.ChatID, Message: "ready"})
	res, err := http.Post(ts.URL+"/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post /chat: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}

	var entry assess.LogEntry
	if err := json.NewDecoder(res.Body).Decode(&entry); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if entry.Role != "assistant" || entry.Message != responder.Reply(1) {
		t.Fatalf("reply = %+v, want first prompt", entry)
	}
}

func TestLogsResolveReportThenChat(t *testing.T) {
	ts, _ := newTestServer(t)
	created := createChat(t, ts, 5)

	client := assess.NewClient(ts.URL, zerolog.Nop())
	byReport, err := client.LogsByReport(context.Background(), 5)
	if err != nil {
		t.Fatalf("LogsByReport() error = %v", err)
	}
	byChat, err := client.LogsByChat(context.Background(), created.ChatID)
	if err != nil {
		t.Fatalf("LogsByChat() error = %v", err)
	}
	if len(byReport) != 1 || len(byChat) != 1 || byReport[0].ID != byChat[0].ID {
		t.Fatalf("report/chat lookups disagree: %+v vs %+v", byReport, byChat)
	}

	// Unknown ids produce an empty array, not an error and not null.
	res, err := http.Get(ts.URL + "/chat/logs/424242")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	defer res.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if got := strings.TrimSpace(string(raw)); got != "[]" {
		t.Fatalf("unknown-id logs body = %s, want []", got)
	}
}

func TestEvaluateLifecycle(t *testing.T) {
	ts, responder := newTestServer(t)
	created := createChat(t, ts, 5)
	client := assess.NewClient(ts.URL, zerolog.Nop())

	eval, err := client.Evaluate(context.Background(), created.ChatID, 5)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if eval.ChatResult != "incomplete" || eval.ChatRisk != "unknown" {
		t.Fatalf("early evaluation = %+v, want incomplete/unknown", eval)
	}

	// Answer every scripted prompt, then evaluation completes.
	answers := len(responder.prompts)
	for i := 0; i < answers; i++ {
		if _, err := client.SendMessage(context.Background(), assess.MessageRequest{
			ReportID: 5,
			ChatID:   created.ChatID,
			Message:  fmt.Sprintf("answer %d", i+1),
		}); err != nil {
			t.Fatalf("SendMessage(%d) error = %v", i+1, err)
		}
	}

	eval, err = client.Evaluate(context.Background(), created.ChatID, 5)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if eval.ChatResult != "complete" || eval.ChatRisk != "low" {
		t.Fatalf("final evaluation = %+v, want complete/low", eval)
	}
}

func TestEvaluateReportMismatch(t *testing.T) {
	ts, _ := newTestServer(t)
	created := createChat(t, ts, 5)

	client := assess.NewClient(ts.URL, zerolog.Nop())
	_, err := client.Evaluate(context.Background(), created.ChatID, 77)

	var statusErr *assess.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("Evaluate() error = %v, want 400 StatusError", err)
	}
}

func TestTranscriptWebSocketFeed(t *testing.T) {
	ts, responder := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/debug/transcripts/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	created := createChat(t, ts, 5)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev TranscriptEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read transcript event: %v", err)
	}
	if ev.ChatID != created.ChatID || ev.Role != "assistant" || ev.Message != responder.Greeting() {
		t.Fatalf("unexpected event: %+v", ev)
	}
}
