package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"akashchat/pkg/chattypes"
)

// sessionMiddleware loads the session named by the cookie, creating a new
// one when the cookie is absent, unknown or expired.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(SessionCookie)

		session, created, err := s.opts.Sessions.GetOrCreateSession(id)
		if err != nil {
			serverLog.Error("Session creation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errorPayload(err)})
			return
		}

		if created {
			s.setSessionCookie(c, session)
			serverLog.Debug("New browser session", "session", session.ID())
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

func (s *Server) setSessionCookie(c *gin.Context, session *chattypes.ChatSession) {
	maxAge := 0
	if s.opts.SessionTTL > 0 {
		maxAge = int(s.opts.SessionTTL.Seconds())
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, session.ID(), maxAge, "/", "", false, true)
}

func sessionFrom(c *gin.Context) *chattypes.ChatSession {
	return c.MustGet(sessionKey).(*chattypes.ChatSession)
}
