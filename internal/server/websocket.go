package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"akashchat/pkg/chattypes"
)

// wsRequest is a client frame on /api/ws.
type wsRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

const wsSubmit = "submit"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts requests without an Origin header or from the serving host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// wsWriter serializes writes; a websocket connection allows one writer at a time.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// WriteEvent implements EventWriter.
func (w *wsWriter) WriteEvent(event Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(event)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	session := sessionFrom(c)

	var header http.Header
	if cookies := c.Writer.Header().Values("Set-Cookie"); len(cookies) > 0 {
		header = http.Header{"Set-Cookie": cookies}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		serverLog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	writer := &wsWriter{conn: conn}
	if err := writer.WriteEvent(Event{Type: "session", Data: session.Snapshot()}); err != nil {
		return
	}
	serverLog.Debug("Websocket connected", "session", session.ID())

	var turns sync.WaitGroup
	defer turns.Wait()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			serverLog.Debug("Websocket closed", "session", session.ID(), "error", err)
			cancel()
			return
		}

		if req.Type != wsSubmit {
			_ = writer.WriteEvent(Event{Type: EventError, Data: ErrorPayload{
				Kind:    chattypes.KindInputRejected,
				Message: "Unknown message type.",
			}})
			continue
		}
		if strings.TrimSpace(req.Message) == "" {
			serverLog.Debug("Empty submit ignored", "session", session.ID())
			continue
		}

		turns.Add(1)
		go func(text string) {
			defer turns.Done()
			sink := newEventSink(writer, s.opts.Thinking.NewSplitter())
			result, err := s.opts.Turns.HandleUserTurn(ctx, text, session, sink)
			if err != nil && result == nil {
				sink.emit(EventError, errorPayload(err))
			}
		}(req.Message)
	}
}
