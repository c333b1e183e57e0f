package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lumocare/cogscreen/internal/assess"
)

// Controller sequences the externally visible session operations: create or
// resume, send, finalize. It owns one Session and is itself owned by one
// screening flow; it is not meant to be shared across flows mutating the
// same chat id.
type Controller struct {
	session  *Session
	client   *assess.Client
	reportID int64
	log      zerolog.Logger

	mu       sync.Mutex
	creating bool
	onToken  func(token string)
}

func NewController(session *Session, client *assess.Client, log zerolog.Logger) *Controller {
	return &Controller{
		session: session,
		client:  client,
		log:     log.With().Str("component", "chat.controller").Logger(),
	}
}

// Session exposes the controller's session state for rendering.
func (c *Controller) Session() *Session { return c.session }

// OnToken registers a listener invoked for every streamed fragment after it
// has been applied to the transcript. Set it before the first send; it is
// for live rendering, not for mutation.
func (c *Controller) OnToken(fn func(token string)) { c.onToken = fn }

// CreateOrResume establishes the chat session for a screening report. When
// the server already holds transcript entries for the report, they are
// loaded and no new session is created; otherwise a session is created and
// the server greeting becomes the first assistant turn.
//
// The call is idempotent under rapid repeated invocation: while one creation
// is in flight, further calls return immediately without issuing a second
// create request.
func (c *Controller) CreateOrResume(ctx context.Context, reportID int64) error {
	c.mu.Lock()
	if c.creating {
		c.mu.Unlock()
		return nil
	}
	c.creating = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.creating = false
		c.mu.Unlock()
	}()

	c.reportID = reportID
	c.session.SetStatus(StatusCreating)

	logs, err := c.client.LogsByReport(ctx, reportID)
	if err != nil {
		// Not fatal: an unreadable log history just means we create fresh.
		c.log.Warn().Err(err).Int64("report_id", reportID).Msg("could not fetch existing chat logs")
	}
	if len(logs) > 0 {
		c.session.Reset()
		c.session.SetChatID(logs[0].ChatID)
		for _, entry := range logs {
			c.session.AppendTurn(speakerFromRole(entry.Role), entry.Message)
		}
		c.session.ClearError()
		c.session.SetStatus(StatusIdle)
		c.log.Info().Int64("chat_id", logs[0].ChatID).Int("turns", len(logs)).Msg("resumed chat session")
		return nil
	}

	created, err := c.client.CreateChat(ctx, reportID)
	if err != nil {
		c.session.SetError(err.Error())
		return fmt.Errorf("create session: %w", err)
	}
	c.session.SetChatID(created.ChatID)
	c.session.AppendTurn(SpeakerAssistant, created.Message)
	c.session.ClearError()
	c.session.SetStatus(StatusIdle)
	c.log.Info().Int64("chat_id", created.ChatID).Msg("created chat session")
	return nil
}

// SendUserMessage echoes the user's text into the transcript, appends an
// empty assistant placeholder and streams the response into it. The user
// turn and placeholder are kept even when the stream fails, so the
// transcript is never rolled back under the user.
func (c *Controller) SendUserMessage(ctx context.Context, text string) error {
	chatID, ok := c.session.ChatID()
	if !ok || c.session.Status() == StatusCreating {
		return ErrInvalidState
	}

	c.session.AppendTurn(SpeakerUser, text)
	c.session.AppendAssistantPlaceholder()
	c.session.SetStatus(StatusAwaitingResponse)

	err := c.client.StreamMessage(ctx, assess.MessageRequest{
		ReportID: c.reportID,
		ChatID:   chatID,
		Message:  text,
	}, func(token string) error {
		c.session.AppendToActiveAssistantTurn(token)
		if c.onToken != nil {
			c.onToken(token)
		}
		return nil
	})
	if err != nil {
		c.session.SetError(err.Error())
		return fmt.Errorf("send message: %w", err)
	}

	c.session.ClearError()
	c.session.SetStatus(StatusIdle)
	return nil
}

// Finalize asks the server to evaluate the completed conversation. Failures
// surface to the caller; retrying is caller policy, not controller behavior.
func (c *Controller) Finalize(ctx context.Context) (assess.Evaluation, error) {
	chatID, ok := c.session.ChatID()
	if !ok {
		return assess.Evaluation{}, ErrInvalidState
	}

	eval, err := c.client.Evaluate(ctx, chatID, c.reportID)
	if err != nil {
		c.session.SetError(err.Error())
		return assess.Evaluation{}, fmt.Errorf("finalize session: %w", err)
	}
	c.session.ClearError()
	return eval, nil
}

func speakerFromRole(role string) Speaker {
	if role == string(SpeakerUser) {
		return SpeakerUser
	}
	return SpeakerAssistant
}
