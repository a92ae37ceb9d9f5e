package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"agenthub/internal/session"
)

const sessionKey = "session"

// touchAfter limits how often a request refreshes UpdatedAt.
const touchAfter = time.Hour

// sessions loads the session named by the cookie or starts a new one.
func (s *Server) sessions() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(s.opts.CookieName)
		now := s.now().UTC()
		sess, created, err := session.Resolve(c.Request.Context(), s.opts.Store, id, now)
		if err != nil {
			s.log.Error("resolve session", slog.Any("error", err))
			c.String(http.StatusInternalServerError, "session unavailable")
			c.Abort()
			return
		}
		if !created && now.Sub(sess.UpdatedAt) > touchAfter {
			sess.UpdatedAt = now
			if err := s.opts.Store.SaveSession(c.Request.Context(), sess); err != nil {
				s.log.Warn("touch session", slog.String("session", sess.ID), slog.Any("error", err))
			}
		}
		if created || id != sess.ID {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(s.opts.CookieName, sess.ID, int(s.opts.SessionTTL.Seconds()), "/", "", s.opts.SecureCookie, true)
		}
		c.Set(sessionKey, &sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

func (s *Server) setTheme(c *gin.Context) {
	sess := currentSession(c)
	sess.Theme = session.ParseTheme(c.PostForm("theme"))
	sess.UpdatedAt = s.now().UTC()
	if err := s.opts.Store.SaveSession(c.Request.Context(), *sess); err != nil {
		s.log.Warn("save theme", slog.Any("error", err))
	}
	c.Redirect(http.StatusSeeOther, safeRedirect(c.PostForm("redirect")))
}

// safeRedirect allows only local agent pages.
func safeRedirect(p string) string {
	switch p {
	case "/video", "/financial", "/pdf":
		return p
	default:
		return "/"
	}
}
