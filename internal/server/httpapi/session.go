package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/server/models"
	"github.com/qfolders/qfolders/internal/server/sessions"
)

const sessionStateKey = "qf.session"

// CookieOptions controls the session cookie.
type CookieOptions struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

// sessionState tracks one request's session from load to commit.
type sessionState struct {
	id        string
	previous  string
	stale     bool
	loaded    models.Session
	session   *models.Session
	committed bool
}

// replace installs s as the request's session under a fresh id.
func (st *sessionState) replace(s *models.Session) {
	if st.id != "" {
		st.previous = st.id
	}
	st.id = ""
	st.session = s
}

func stateOf(c *gin.Context) *sessionState {
	if v, ok := c.Get(sessionStateKey); ok {
		return v.(*sessionState)
	}
	st := &sessionState{session: &models.Session{}}
	c.Set(sessionStateKey, st)
	return st
}

// sessionOf returns the request's session. It is never nil.
func sessionOf(c *gin.Context) *models.Session {
	return stateOf(c).session
}

// loadSession reads the session named by the cookie into the request.
func (h *Handler) loadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		st := stateOf(c)
		if id, err := c.Cookie(h.cookie.Name); err == nil && id != "" {
			s, err := h.sessions.Get(c.Request.Context(), id)
			switch {
			case err == nil:
				st.id, st.session, st.loaded = id, s, *s
			case errors.Is(err, common.ErrorNotFound):
				st.stale = true
			default:
				h.logger.Error(c.Request.Context(), "session load failed", "error", err)
				h.fail(c, common.ErrStoreUnavailable)
				c.Abort()
				return
			}
		}
		c.Next()
		h.commitSession(c)
	}
}

// requireSession rejects requests without an authenticated session.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sessionOf(c).Authenticated() {
			h.fail(c, common.ErrSessionExpired)
			c.Abort()
			return
		}
		c.Next()
	}
}

// commitSession writes the session back: a changed authenticated session is
// saved, a cleared one is deleted together with its cookie. It runs before
// the response is written and is a no-op the second time.
func (h *Handler) commitSession(c *gin.Context) {
	st := stateOf(c)
	if st.committed {
		return
	}
	st.committed = true
	ctx := c.Request.Context()

	if st.previous != "" {
		if err := h.sessions.Delete(ctx, st.previous); err != nil {
			h.logger.Warn(ctx, "session delete failed", "error", err)
		}
	}

	if !st.session.Authenticated() {
		if st.id != "" {
			if err := h.sessions.Delete(ctx, st.id); err != nil {
				h.logger.Warn(ctx, "session delete failed", "error", err)
			}
		}
		if st.id != "" || st.previous != "" || st.stale {
			h.setCookie(c, "", -1)
		}
		return
	}

	fresh := st.id == ""
	if fresh {
		id, err := sessions.NewID()
		if err != nil {
			h.logger.Error(ctx, "session id generation failed", "error", err)
			return
		}
		st.id = id
	} else if *st.session == st.loaded {
		return
	}

	if err := h.sessions.Save(ctx, st.id, st.session, h.cookie.TTL); err != nil {
		h.logger.Error(ctx, "session save failed", "error", err)
		return
	}
	st.loaded = *st.session
	if fresh {
		h.setCookie(c, st.id, int(h.cookie.TTL.Seconds()))
	}
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", "", h.cookie.Secure, true)
}
