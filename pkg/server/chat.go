package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/harunnryd/frontdesk/pkg/agent"
	"github.com/harunnryd/frontdesk/pkg/conversation"
	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/harunnryd/frontdesk/pkg/tenant"
	"github.com/harunnryd/frontdesk/pkg/tools"
)

const msgNoTenant = "No active client found for this phone number."

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("Could not read request body."))
		return
	}
	req, err := conversation.ParseRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	cfg, ok := s.resolve(w, r.Context(), req)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody("Streaming unsupported."))
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher, id: "chatcmpl-" + uuid.NewString(), model: s.cfg.Model, now: s.now}
	s.deps.Conversation.Handle(r.Context(), cfg, req, sink)
}

// resolve writes the error response itself and reports false when the turn
// cannot proceed.
func (s *Server) resolve(w http.ResponseWriter, ctx context.Context, req conversation.Request) (*tenant.Config, bool) {
	cfg, err := s.deps.Conversation.Resolve(ctx, req.ToNumber)
	if err == nil {
		return cfg, true
	}
	if errors.Is(err, tenant.ErrNotFound) {
		s.logger.Info("tenant_not_found", "call_id", req.CallID, "to_number", req.ToNumber)
		writeJSON(w, http.StatusNotFound, errorBody(msgNoTenant))
		return nil, false
	}
	s.logger.Error("tenant_resolve_failed", errorsx.Attrs(err)...)
	writeJSON(w, http.StatusInternalServerError, errorBody("Internal Server Error"))
	return nil, false
}

type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type completionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

// sseSink writes chat.completion.chunk events. The disposition is not sent
// on the wire; it travels through dispatch instead.
type sseSink struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	id      string
	model   string
	now     func() time.Time
	done    bool
}

func (s *sseSink) Emit(ctx context.Context, text string) error {
	return s.write(ctx, chunkChoice{Delta: chunkDelta{Role: "assistant", Content: text}})
}

func (s *sseSink) Complete(ctx context.Context, _ *tools.Disposition) error {
	stop := "stop"
	if err := s.write(ctx, chunkChoice{FinishReason: &stop}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	if _, err := io.WriteString(s.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("%w: %v", agent.ErrSinkClosed, err)
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) write(ctx context.Context, choice chunkChoice) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", agent.ErrSinkClosed, err)
	}
	payload, err := json.Marshal(completionChunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.now().Unix(),
		Model:   s.model,
		Choices: []chunkChoice{choice},
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return agent.ErrSinkClosed
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("%w: %v", agent.ErrSinkClosed, err)
	}
	s.flusher.Flush()
	return nil
}
