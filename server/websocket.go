package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xhad/folio/internal/models"
	"github.com/xhad/folio/pkg/catalog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the frame sent to clients.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type clientMessage struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type workRef struct {
	WorkID string `json:"work_id"`
	Index  int    `json:"index"`
	Page   int    `json:"page"`
}

type statusData struct {
	Searching bool   `json:"searching"`
	Query     string `json:"query"`
}

type chapterData struct {
	WorkID string `json:"work_id"`
	Index  int    `json:"index"`
	Page   int    `json:"page"`
	Pages  int    `json:"pages"`
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *slog.Logger
}

func (c *wsConn) send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Warn("Error sending message", slog.String("type", msg.Type), slog.String("error", err.Error()))
	}
}

func (c *wsConn) sendError(content string) {
	c.send(Message{Type: "error", Content: content})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	c := &wsConn{
		conn:   conn,
		logger: s.logger.With(slog.String("conn", uuid.NewString())),
	}

	// Results are pushed from the session observer so a client only ever
	// sees published state.
	session := catalog.NewSession(s.catalog, catalog.SessionConfig{
		Ordering: s.config.Ordering,
		Observer: func(ev catalog.Event) {
			c.send(Message{Type: "status", Data: statusData{Searching: ev.State.Searching, Query: ev.Query}})
			if ev.Kind == catalog.EventFinished {
				c.send(Message{Type: "results", Data: ev.State.Results})
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	c.logger.Debug("WebSocket connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Error reading message", slog.String("error", err.Error()))
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("Malformed message")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, c, session, msg)
		}()
	}

	cancel()
}

func (s *Server) handleMessage(ctx context.Context, c *wsConn, session *catalog.Session, msg clientMessage) {
	switch msg.Type {
	case "search":
		if _, ok := session.Search(ctx, msg.Content); !ok {
			c.send(Message{Type: "results", Data: session.Results()})
		}

	case "chapter":
		ref, work, ok := s.resolveWork(c, session, msg)
		if !ok {
			return
		}
		content, pages := s.reader.FetchPage(ctx, work, ref.Index, ref.Page)
		c.send(Message{Type: "chapter", Content: content, Data: chapterData{
			WorkID: work.ID,
			Index:  ref.Index,
			Page:   clamp(ref.Page, pages),
			Pages:  pages,
		}})

	case "ask":
		if s.indexer == nil {
			c.sendError("Passage index is not configured")
			return
		}
		_, work, ok := s.resolveWork(c, session, msg)
		if !ok {
			return
		}
		answer, err := s.indexer.AskStream(ctx, work, msg.Content, func(chunk string) {
			c.send(Message{Type: "stream", Content: chunk})
		})
		if err != nil {
			c.logger.Error("Failed to answer", slog.String("work", work.ID), slog.String("error", err.Error()))
			c.sendError(fmt.Sprintf("Error: %v", err))
			return
		}
		c.send(Message{Type: "response", Content: answer.Text, Data: answer.Passages})

	default:
		c.sendError(fmt.Sprintf("Unknown message type %q", msg.Type))
	}
}

// resolveWork finds the work a message refers to among the session results.
func (s *Server) resolveWork(c *wsConn, session *catalog.Session, msg clientMessage) (workRef, models.Work, bool) {
	var ref workRef
	if len(msg.Data) == 0 || json.Unmarshal(msg.Data, &ref) != nil || ref.WorkID == "" {
		c.sendError("Missing work_id")
		return ref, models.Work{}, false
	}

	work, ok := session.Find(ref.WorkID)
	if !ok {
		c.sendError(fmt.Sprintf("Unknown work %s", ref.WorkID))
		return ref, models.Work{}, false
	}
	return ref, work, true
}
