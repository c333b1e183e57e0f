package assess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lumocare/cogscreen/internal/observability"
)

const defaultRequestTimeout = 15 * time.Second

// Client wraps the assessment API's chat endpoints: session creation, the
// streamed and non-streamed send paths, log retrieval and evaluation.
type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  TokenSource
	timeout time.Duration
	metrics *observability.Metrics
	log     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The client must not
// carry a global timeout: streamed responses stay open for the lifetime of a
// generation and are bounded only by the caller's context.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithTokenSource sets the bearer token source for all requests.
func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) { c.tokens = tokens }
}

// WithRequestTimeout bounds non-streamed calls. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMetrics attaches Prometheus instruments for stream activity.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(baseURL string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:   &http.Client{},
		timeout: defaultRequestTimeout,
		log:     log.With().Str("component", "assess.client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateChat opens a chat session for the given screening report and returns
// the server-assigned chat id along with the opening greeting.
func (c *Client) CreateChat(ctx context.Context, reportID int64) (CreateChatResponse, error) {
	var out CreateChatResponse
	err := c.doJSON(ctx, http.MethodPost, "/chat/create", CreateChatRequest{ReportID: reportID}, &out)
	if err != nil {
		return CreateChatResponse{}, fmt.Errorf("create chat: %w", err)
	}
	return out, nil
}

// SendMessage is the non-streamed send path: the full assistant reply comes
// back in a single JSON body. It exists alongside StreamMessage for clients
// that cannot consume event streams.
func (c *Client) SendMessage(ctx context.Context, req MessageRequest) (LogEntry, error) {
	if req.ChatID == 0 {
		return LogEntry{}, ErrNoSession
	}
	var out LogEntry
	if err := c.doJSON(ctx, http.MethodPost, "/chat", req, &out); err != nil {
		return LogEntry{}, fmt.Errorf("send message: %w", err)
	}
	return out, nil
}

// StreamMessage posts a user message and consumes the event-stream response,
// invoking onToken for each assistant text fragment in arrival order. It
// returns nil on the [DONE] sentinel or a clean connection close, and stops
// delivering tokens as soon as ctx is cancelled.
func (c *Client) StreamMessage(ctx context.Context, req MessageRequest, onToken func(token string) error) error {
	if req.ChatID == 0 {
		return ErrNoSession
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/chat/stream", req)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	res, err := c.httpc.Do(httpReq)
	if err != nil {
		c.countOutcome("transport_error")
		return fmt.Errorf("stream request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.countOutcome("http_error")
		return c.statusError(res)
	}

	if c.metrics != nil {
		c.metrics.ActiveStreams.Inc()
		defer c.metrics.ActiveStreams.Dec()
	}

	err = consumeStream(ctx, res.Body, c.log, func(token string) error {
		if c.metrics != nil {
			c.metrics.StreamTokens.Inc()
		}
		return onToken(token)
	})
	if err != nil {
		c.countOutcome("stream_error")
		return err
	}
	c.countOutcome("ok")
	return nil
}

// LogsByReport fetches the persisted transcript for a report's chat session.
func (c *Client) LogsByReport(ctx context.Context, reportID int64) ([]LogEntry, error) {
	return c.fetchLogs(ctx, reportID)
}

// LogsByChat fetches the persisted transcript by chat id.
func (c *Client) LogsByChat(ctx context.Context, chatID int64) ([]LogEntry, error) {
	return c.fetchLogs(ctx, chatID)
}

// The server resolves the log key as a report id first and a chat id second,
// so both lookups share one path.
func (c *Client) fetchLogs(ctx context.Context, key int64) ([]LogEntry, error) {
	var out []LogEntry
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/chat/logs/%d", key), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}
	return out, nil
}

// Evaluate triggers server-side evaluation of a completed chat session. The
// call is fire-and-complete: no retries here, that is caller policy.
func (c *Client) Evaluate(ctx context.Context, chatID, reportID int64) (Evaluation, error) {
	if chatID == 0 {
		return Evaluation{}, ErrNoSession
	}
	path := fmt.Sprintf("/chat/chats/%d/evaluate?report_id=%d", chatID, reportID)
	var out Evaluation
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return Evaluation{}, fmt.Errorf("evaluate chat: %w", err)
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return c.statusError(res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) statusError(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return &StatusError{
		StatusCode: res.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

func (c *Client) countOutcome(outcome string) {
	if c.metrics != nil {
		c.metrics.StreamOutcomes.WithLabelValues(outcome).Inc()
	}
}
