// Package relay implements a local stand-in for the production assessment
// service's chat endpoints. It speaks the exact wire protocol the client
// consumes (JSON REST plus the data:-framed event stream) against a
// pluggable store, with a scripted assistant instead of a scoring engine.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lumocare/cogscreen/internal/assess"
	"github.com/lumocare/cogscreen/internal/observability"
	"github.com/lumocare/cogscreen/internal/store"
)

const doneSentinel = "[DONE]"

type Server struct {
	store          store.Store
	responder      *Responder
	metrics        *observability.Metrics
	hub            *hub
	upgrader       websocket.Upgrader
	allowAnyOrigin bool
	log            zerolog.Logger
}

func New(st store.Store, responder *Responder, metrics *observability.Metrics, allowAnyOrigin bool, log zerolog.Logger) *Server {
	s := &Server{
		store:          st,
		responder:      responder,
		metrics:        metrics,
		hub:            newHub(),
		allowAnyOrigin: allowAnyOrigin,
		log:            log.With().Str("component", "relay").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/chat/create", s.handleCreateChat)
	r.Post("/chat/stream", s.handleStream)
	r.Post("/chat", s.handleChat)
	r.Get("/chat/logs/{key}", s.handleLogs)
	r.Post("/chat/chats/{chatID}/evaluate", s.handleEvaluate)
	r.Get("/debug/transcripts/ws", s.handleTranscriptWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleCreateChat is idempotent per report: a second create for a report
// that already has a chat returns the existing chat id instead of forking a
// parallel session.
func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req assess.CreateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.ReportID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_report_id", "report_id is required")
		return
	}

	ctx := r.Context()
	chatID, err := s.store.ChatByReport(ctx, req.ReportID)
	switch {
	case err == nil:
		s.metrics.ChatEvents.WithLabelValues("reused").Inc()
	case errors.Is(err, store.ErrNotFound):
		chatID, err = s.store.CreateChat(ctx, req.ReportID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
		entry, err := s.store.AppendEntry(ctx, store.Entry{
			ChatID:   chatID,
			ReportID: req.ReportID,
			Role:     "assistant",
			Message:  s.responder.Greeting(),
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
		s.broadcastEntry(entry)
		s.metrics.ChatEvents.WithLabelValues("created").Inc()
	default:
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, assess.CreateChatResponse{
		ChatID:  chatID,
		Message: s.responder.Greeting(),
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, reportID, ok := s.acceptMessage(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot flush")
		return
	}

	ctx := r.Context()
	reply, ok := s.recordUserTurn(w, ctx, req, reportID)
	if !ok {
		return
	}

	setupSSEHeaders(w)
	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	var sent strings.Builder
	complete := true
	for _, token := range tokenize(reply) {
		if ctx.Err() != nil {
			complete = false
			break
		}
		if err := writeSSEJSON(w, flusher, map[string]string{"token": token}); err != nil {
			s.log.Debug().Err(err).Msg("stream write failed, client likely gone")
			complete = false
			break
		}
		sent.WriteString(token)
		s.metrics.StreamTokens.Inc()
	}
	if complete {
		_ = writeSSERaw(w, flusher, doneSentinel)
	}

	// Persist whatever was actually delivered, even for an abandoned stream,
	// so re-fetched logs match what the client saw. The request context may
	// already be cancelled here.
	if sent.Len() > 0 {
		persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		entry, err := s.store.AppendEntry(persistCtx, store.Entry{
			ChatID:   req.ChatID,
			ReportID: reportID,
			Role:     "assistant",
			Message:  sent.String(),
		})
		if err != nil {
			s.log.Error().Err(err).Int64("chat_id", req.ChatID).Msg("persist assistant turn failed")
			return
		}
		s.broadcastEntry(entry)
	}
	s.metrics.ChatEvents.WithLabelValues("message").Inc()
}

// handleChat is the non-streamed send path kept in parallel with
// handleStream for clients that cannot consume event streams.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, reportID, ok := s.acceptMessage(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	reply, ok := s.recordUserTurn(w, ctx, req, reportID)
	if !ok {
		return
	}

	entry, err := s.store.AppendEntry(ctx, store.Entry{
		ChatID:   req.ChatID,
		ReportID: reportID,
		Role:     "assistant",
		Message:  reply,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	s.broadcastEntry(entry)
	s.metrics.ChatEvents.WithLabelValues("message").Inc()
	respondJSON(w, http.StatusOK, entryToLog(entry))
}

// acceptMessage validates a send request and resolves its report id.
func (s *Server) acceptMessage(w http.ResponseWriter, r *http.Request) (assess.MessageRequest, int64, bool) {
	var req assess.MessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return req, 0, false
	}
	if req.ChatID == 0 {
		respondError(w, http.StatusBadRequest, "invalid_chat_id", "chat_id is required")
		return req, 0, false
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "empty_message", "message is required")
		return req, 0, false
	}

	reportID, err := s.store.ChatReport(r.Context(), req.ChatID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "chat_not_found", "unknown chat id")
		return req, 0, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return req, 0, false
	}
	if req.ReportID != 0 && req.ReportID != reportID {
		respondError(w, http.StatusBadRequest, "report_mismatch", "chat does not belong to report")
		return req, 0, false
	}
	return req, reportID, true
}

// recordUserTurn persists the user's message and computes the scripted
// reply that should follow it.
func (s *Server) recordUserTurn(w http.ResponseWriter, ctx context.Context, req assess.MessageRequest, reportID int64) (string, bool) {
	entry, err := s.store.AppendEntry(ctx, store.Entry{
		ChatID:   req.ChatID,
		ReportID: reportID,
		Role:     "user",
		Message:  req.Message,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return "", false
	}
	s.broadcastEntry(entry)

	userTurns, err := s.countUserTurns(ctx, req.ChatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return "", false
	}
	return s.responder.Reply(userTurns), true
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	key, err := strconv.ParseInt(chi.URLParam(r, "key"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_key", "log key must be numeric")
		return
	}

	// The key resolves as a report id first and falls back to a chat id, so
	// one path serves both lookups.
	ctx := r.Context()
	entries, err := s.store.EntriesByReport(ctx, key)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if len(entries) == 0 {
		entries, err = s.store.EntriesByChat(ctx, key)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
	}

	out := make([]assess.LogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryToLog(e))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_chat_id", "chat id must be numeric")
		return
	}

	ctx := r.Context()
	reportID, err := s.store.ChatReport(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "chat_not_found", "unknown chat id")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	if q := strings.TrimSpace(r.URL.Query().Get("report_id")); q != "" {
		want, err := strconv.ParseInt(q, 10, 64)
		if err != nil || want != reportID {
			respondError(w, http.StatusBadRequest, "report_mismatch", "chat does not belong to report")
			return
		}
	}

	userTurns, err := s.countUserTurns(ctx, chatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	result, risk, message := s.responder.Evaluate(userTurns)
	s.metrics.ChatEvents.WithLabelValues("evaluated").Inc()
	respondJSON(w, http.StatusOK, assess.Evaluation{
		ChatResult: result,
		ChatRisk:   risk,
		Message:    message,
	})
}

func (s *Server) countUserTurns(ctx context.Context, chatID int64) (int, error) {
	entries, err := s.store.EntriesByChat(ctx, chatID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if e.Role == "user" {
			count++
		}
	}
	return count, nil
}

func (s *Server) broadcastEntry(e store.Entry) {
	s.hub.broadcast(TranscriptEvent{
		ChatID:   e.ChatID,
		ReportID: e.ReportID,
		Role:     e.Role,
		Message:  e.Message,
		At:       e.CreatedAt,
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func entryToLog(e store.Entry) assess.LogEntry {
	return assess.LogEntry{
		ID:        e.ID,
		ChatID:    e.ChatID,
		Role:      e.Role,
		Message:   e.Message,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
