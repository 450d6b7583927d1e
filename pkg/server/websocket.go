package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/frontdesk/pkg/agent"
	"github.com/harunnryd/frontdesk/pkg/conversation"
	"github.com/harunnryd/frontdesk/pkg/tenant"
	"github.com/harunnryd/frontdesk/pkg/tools"
)

const (
	frameFragment = "fragment"
	frameComplete = "complete"
	frameError    = "error"

	wsWriteTimeout = 10 * time.Second
)

// wsFrame is one server-to-client message on /ws/chat.
type wsFrame struct {
	Type        string             `json:"type"`
	CallID      string             `json:"call_id,omitempty"`
	Text        string             `json:"text,omitempty"`
	Disposition *tools.Disposition `json:"disposition,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// handleWebsocket serves any number of turns over one connection. Each text
// message is a chat request body; turns run one at a time.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sink := &wsSink{conn: conn}

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("ws_read_failed", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		req, err := conversation.ParseRequest(msg)
		if err != nil {
			_ = sink.send(wsFrame{Type: frameError, Error: err.Error()})
			continue
		}
		cfg, err := s.deps.Conversation.Resolve(ctx, req.ToNumber)
		if err != nil {
			text := "Internal Server Error"
			if errors.Is(err, tenant.ErrNotFound) {
				text = msgNoTenant
			}
			_ = sink.send(wsFrame{Type: frameError, CallID: req.CallID, Error: text})
			continue
		}
		sink.callID = req.CallID
		s.deps.Conversation.Handle(ctx, cfg, req, sink)
	}
}

type wsSink struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	callID string
}

func (s *wsSink) Emit(_ context.Context, text string) error {
	return s.send(wsFrame{Type: frameFragment, CallID: s.callID, Text: text})
}

func (s *wsSink) Complete(_ context.Context, d *tools.Disposition) error {
	return s.send(wsFrame{Type: frameComplete, CallID: s.callID, Disposition: d})
}

func (s *wsSink) send(f wsFrame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %v", agent.ErrSinkClosed, err)
	}
	return nil
}
