// Package session keeps per-browser values across the provider redirect:
// the OAuth2 state, the OpenID nonce and the OAuth1 request token.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/socialauth/internal/cache"
	"github.com/dropDatabas3/socialauth/internal/oauth/oauth1"
)

const (
	CookieName = "socialauth_sid"
	DefaultTTL = 15 * time.Minute
)

// Session scopes cache keys to one session id.
type Session struct {
	ID    string
	store cache.Client
	ttl   time.Duration
	// fresh: emitida en este request, nadie más conoce el id
	fresh bool
}

var _ oauth1.TokenStore = (*Session)(nil)

// New binds sid to store. ttl <= 0 uses DefaultTTL.
func New(store cache.Client, sid string, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Session{ID: sid, store: store, ttl: ttl}
}

func (s *Session) key(k string) string { return "sess:" + s.ID + ":" + k }

// Get returns ok=false when the key is absent or expired.
func (s *Session) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.store.Get(ctx, s.key(key))
	if errors.Is(err, cache.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Session) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.key(key), value, s.ttl)
}

func (s *Session) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, s.key(key))
}

// Take reads key and deletes it; single-use values (state, nonce).
func (s *Session) Take(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	return v, true, s.Delete(ctx, key)
}

// Manager issues and reads the session cookie.
type Manager struct {
	Store  cache.Client
	TTL    time.Duration
	Secure bool
}

// keyIssued marca los ids emitidos por el server; un id sin marca no se acepta.
const keyIssued = "_issued"

func (m *Manager) ttl() time.Duration {
	if m.TTL <= 0 {
		return DefaultTTL
	}
	return m.TTL
}

// Load returns the request's session. A cookie whose id this server did not
// issue (or whose session expired) is replaced by a fresh one.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if c, err := r.Cookie(CookieName); err == nil && validID(c.Value) {
		s := New(m.Store, c.Value, m.ttl())
		_, ok, err := s.Get(r.Context(), keyIssued)
		if err != nil {
			return nil, err
		}
		if ok {
			return s, nil
		}
	}
	return m.issue(r.Context(), w)
}

// Rotate moves keep from old into a new session id, invalidates old and sets
// the new cookie. Call it whenever the authenticated user changes (login,
// logout) so an id known before that point is useless afterwards.
func (m *Manager) Rotate(ctx context.Context, w http.ResponseWriter, old *Session, keep ...string) (*Session, error) {
	if old.fresh {
		return old, nil
	}
	next, err := m.issue(ctx, w)
	if err != nil {
		return nil, err
	}
	for _, k := range keep {
		v, ok, err := old.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := next.Set(ctx, k, v); err != nil {
			return nil, err
		}
		if err := old.Delete(ctx, k); err != nil {
			return nil, err
		}
	}
	if err := old.Delete(ctx, keyIssued); err != nil {
		return nil, err
	}
	return next, nil
}

func (m *Manager) issue(ctx context.Context, w http.ResponseWriter) (*Session, error) {
	sid, err := NewID()
	if err != nil {
		return nil, err
	}
	s := New(m.Store, sid, m.ttl())
	if err := s.Set(ctx, keyIssued, "1"); err != nil {
		return nil, err
	}
	s.fresh = true
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(m.ttl().Seconds()),
		HttpOnly: true,
		Secure:   m.Secure,
		// Lax: the provider callback is a top-level GET. Apple's form_post
		// callback is cross-site POST and needs SameSite=None on https.
		SameSite: m.sameSite(),
	})
	return s, nil
}

func (m *Manager) sameSite() http.SameSite {
	if m.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// NewID returns 32 random bytes, base64url.
func NewID() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

func validID(s string) bool {
	b, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil && len(b) == 32
}
