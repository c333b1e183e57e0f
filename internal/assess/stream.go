package assess

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

const doneSentinel = "[DONE]"

type eventKind int

const (
	// eventIgnore covers blank lines, SSE comments and any line without the
	// data prefix; the wire format says to skip them silently.
	eventIgnore eventKind = iota
	// eventMalformed is a data line whose payload failed to decode; it is
	// logged and skipped so one glitched event cannot abort a generation.
	eventMalformed
	eventToken
	eventDone
)

type streamEvent struct {
	kind  eventKind
	token string
}

// decodeStreamLine classifies one complete line of the event stream. Framing
// is newline-delimited SSE: meaningful lines carry a "data: " prefix followed
// by either a JSON object with a "token" field or the [DONE] sentinel.
func decodeStreamLine(line string) streamEvent {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return streamEvent{kind: eventIgnore}
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == doneSentinel {
		return streamEvent{kind: eventDone}
	}

	var body struct {
		Token *string `json:"token"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return streamEvent{kind: eventMalformed}
	}
	if body.Token == nil {
		return streamEvent{kind: eventMalformed}
	}
	return streamEvent{kind: eventToken, token: *body.Token}
}

// consumeStream reads the streamed response body line by line and forwards
// token events to onToken in arrival order. The scanner holds back the
// trailing partial line between reads, so event boundaries that fall in the
// middle of a network chunk (or a multi-byte sequence) reassemble correctly.
// Both the [DONE] sentinel and a plain end-of-stream are successful
// terminations. The context is checked before every delivery: once the
// caller cancels, no further tokens are forwarded.
func consumeStream(ctx context.Context, body io.Reader, log zerolog.Logger, onToken func(string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev := decodeStreamLine(scanner.Text())
		switch ev.kind {
		case eventDone:
			return nil
		case eventToken:
			if err := onToken(ev.token); err != nil {
				return err
			}
		case eventMalformed:
			log.Warn().Str("line", scanner.Text()).Msg("skipping malformed stream line")
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("stream read: %w", err)
	}
	return nil
}
