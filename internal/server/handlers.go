package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"akashchat/internal/data/embedded"
	"akashchat/internal/version"
	"akashchat/pkg/chattypes"
)

type settingsRequest struct {
	Model     *string `json:"model"`
	WebSearch *bool   `json:"web_search"`
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", embedded.IndexHTML)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"version":     version.GetVersion(),
		"commit":      version.GitCommit,
		"prerelease":  version.IsPrerelease(),
		"development": version.IsDevelopment(),
	})
}

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":  s.opts.Catalog.Models(),
		"default": s.opts.Catalog.Default().ID,
	})
}

func (s *Server) handleSession(c *gin.Context) {
	s.writeSession(c, sessionFrom(c))
}

// handleResetSession drops the conversation and starts a new session that
// keeps the current settings. It is refused while a turn is running.
func (s *Server) handleResetSession(c *gin.Context) {
	old := sessionFrom(c)
	if old.TurnActive() {
		abortWithError(c, chattypes.NewTurnError(chattypes.KindTurnInProgress, "reset", fmt.Errorf("a response is still being generated")))
		return
	}

	session, err := s.opts.Sessions.CreateSession()
	if err != nil {
		abortWithError(c, err)
		return
	}
	session.SetSettings(old.Settings(), s.opts.Sessions.Now())
	s.opts.Sessions.DeleteSession(old.ID())
	s.setSessionCookie(c, session)
	serverLog.Debug("Session reset", "old", old.ID(), "session", session.ID())

	s.writeSession(c, session)
}

func (s *Server) writeSession(c *gin.Context, session *chattypes.ChatSession) {
	snap := session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"session_id":           snap.ID,
		"settings":             snap.Settings,
		"messages":             snap.Messages,
		"turn_active":          session.TurnActive(),
		"web_search_available": s.opts.Turns.SearchAvailable(),
	})
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	session := sessionFrom(c)

	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, chattypes.NewTurnError(chattypes.KindInputRejected, "settings", err))
		return
	}

	settings := session.Settings()
	if req.Model != nil {
		entry, err := s.opts.Catalog.Resolve(*req.Model)
		if err != nil {
			abortWithError(c, err)
			return
		}
		settings.SelectedModel = entry.ID
	}
	if req.WebSearch != nil {
		if *req.WebSearch && !s.opts.Turns.SearchAvailable() {
			abortWithError(c, chattypes.NewTurnError(chattypes.KindConfiguration, "settings", fmt.Errorf("web search is not configured")))
			return
		}
		settings.WebSearchEnabled = *req.WebSearch
	}

	session.SetSettings(settings, s.opts.Sessions.Now())
	serverLog.Debug("Settings updated", "session", session.ID(), "model", settings.SelectedModel, "web_search", settings.WebSearchEnabled)
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (s *Server) handleChat(c *gin.Context) {
	session := sessionFrom(c)

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, chattypes.NewTurnError(chattypes.KindInputRejected, "chat", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		abortWithError(c, chattypes.NewTurnError(chattypes.KindInputRejected, "chat", fmt.Errorf("message is empty")))
		return
	}
	if session.TurnActive() {
		abortWithError(c, chattypes.NewTurnError(chattypes.KindTurnInProgress, "chat", fmt.Errorf("turn in progress")))
		return
	}

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		serverLog.Error("Streaming not supported", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errorPayload(err)})
		return
	}
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	stop := s.keepAlive(ctx, writer)
	defer stop()

	sink := newEventSink(writer, s.opts.Thinking.NewSplitter())
	result, err := s.opts.Turns.HandleUserTurn(ctx, req.Message, session, sink)
	if err != nil {
		if result == nil {
			sink.emit(EventError, errorPayload(err))
		}
		serverLog.Warn("Turn failed", "session", session.ID(), "error", err)
		return
	}
	serverLog.Debug("Turn streamed", "session", session.ID(), "fragments", result.FragmentCount)
}

// keepAlive writes SSE comments until the returned stop func is called.
func (s *Server) keepAlive(ctx context.Context, writer *SSEWriter) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.opts.KeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
