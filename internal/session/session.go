package session

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// SessionCookieName is the cookie carrying the session ID
const SessionCookieName = "pdf_ingest_session"

const sessionIDKey = "session_id"

// ErrNoSession is returned when the request carries no usable session
var ErrNoSession = errors.New("no session found")

// Options controls the session cookie
type Options struct {
	MaxAge int
	Secure bool
}

// Manager maps requests to session IDs. Only the ID lives in the cookie;
// accumulated pages are kept server side.
type Manager struct {
	logger  *zap.SugaredLogger
	store   sessions.Store
	options Options
}

// NewManager creates a new session manager
func NewManager(logger *zap.SugaredLogger, store sessions.Store, options Options) *Manager {
	if options.MaxAge == 0 {
		options.MaxAge = 3600
	}
	return &Manager{
		logger:  logger,
		store:   store,
		options: options,
	}
}

// NewCookieStore builds the cookie store used by the manager
func NewCookieStore(secret []byte) *sessions.CookieStore {
	return sessions.NewCookieStore(secret)
}

func (m *Manager) cookieOptions(maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.options.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SessionID returns the request's session ID, creating and saving a new
// session when the request has none or its cookie cannot be decoded.
func (m *Manager) SessionID(c *gin.Context) (string, error) {
	if id, ok := c.Get(sessionIDKey); ok {
		return id.(string), nil
	}

	sess, err := m.store.Get(c.Request, SessionCookieName)
	if err != nil {
		// A cookie signed with a rotated secret decodes as an error; start over
		m.logger.Debugw("discarding unreadable session cookie", "error", err)
		sess = sessions.NewSession(m.store, SessionCookieName)
		sess.IsNew = true
	}

	id, _ := sess.Values[sessionIDKey].(string)
	if id == "" {
		id = uuid.NewString()
		sess.Values[sessionIDKey] = id
		sess.Options = m.cookieOptions(m.options.MaxAge)
		if err := m.store.Save(c.Request, c.Writer, sess); err != nil {
			return "", fmt.Errorf("failed to save session: %w", err)
		}
		m.logger.Infow("session created", "session_id", id)
	}

	c.Set(sessionIDKey, id)
	return id, nil
}

// CurrentID returns the session ID without creating one
func (m *Manager) CurrentID(c *gin.Context) (string, error) {
	if id, ok := c.Get(sessionIDKey); ok {
		return id.(string), nil
	}

	sess, err := m.store.Get(c.Request, SessionCookieName)
	if err != nil {
		return "", ErrNoSession
	}
	id, _ := sess.Values[sessionIDKey].(string)
	if id == "" {
		return "", ErrNoSession
	}
	return id, nil
}

// End expires the session cookie and returns the ID that was ended
func (m *Manager) End(c *gin.Context) (string, error) {
	id, err := m.CurrentID(c)
	if err != nil {
		return "", err
	}

	sess, err := m.store.Get(c.Request, SessionCookieName)
	if err != nil {
		sess = sessions.NewSession(m.store, SessionCookieName)
	}
	delete(sess.Values, sessionIDKey)
	sess.Options = m.cookieOptions(-1)
	if err := m.store.Save(c.Request, c.Writer, sess); err != nil {
		return "", fmt.Errorf("failed to expire session: %w", err)
	}

	m.logger.Infow("session ended", "session_id", id)
	return id, nil
}
