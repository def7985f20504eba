package keystore

import (
	"net/http"
	"net/url"
	"time"

	"github.com/teranos/ctxeng/errors"
)

// CookieMaxAge is how long a credential cookie survives: one year.
const CookieMaxAge = 365 * 24 * 60 * 60

var errNoSession = errors.New("no session for this request")

// CookieTier keeps values in browser cookies. It is bound to a single HTTP
// exchange: reads see the request's cookies plus anything written earlier in
// the same exchange, writes go out as Set-Cookie headers on the response.
type CookieTier struct {
	w      http.ResponseWriter
	r      *http.Request
	secure bool
	// pending records writes made during this exchange; nil means removed.
	pending map[string]*string
}

// NewCookieTier binds a cookie tier to one request/response pair.
func NewCookieTier(w http.ResponseWriter, r *http.Request) *CookieTier {
	return &CookieTier{
		w:       w,
		r:       r,
		secure:  r != nil && r.TLS != nil,
		pending: make(map[string]*string),
	}
}

// Name implements Tier.
func (t *CookieTier) Name() string { return "cookie" }

// Set implements Tier.
func (t *CookieTier) Set(key, value string) error {
	if t.w == nil {
		return errors.New("cookie tier has no response to write to")
	}
	c := &http.Cookie{
		Name:     key,
		Value:    url.QueryEscape(value),
		Path:     "/",
		MaxAge:   CookieMaxAge,
		Expires:  time.Now().Add(CookieMaxAge * time.Second),
		SameSite: http.SameSiteStrictMode,
		HttpOnly: true,
		Secure:   t.secure,
	}
	if err := c.Valid(); err != nil {
		return errors.Wrapf(err, "cookie %s", key)
	}
	http.SetCookie(t.w, c)
	t.pending[key] = &value
	return nil
}

// Get implements Tier.
func (t *CookieTier) Get(key string) (string, bool, error) {
	if v, ok := t.pending[key]; ok {
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}
	if t.r == nil {
		return "", false, nil
	}
	c, err := t.r.Cookie(key)
	if errors.Is(err, http.ErrNoCookie) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "cookie %s", key)
	}
	value, err := url.QueryUnescape(c.Value)
	if err != nil {
		return "", false, errors.Wrapf(err, "decode cookie %s", key)
	}
	return value, true, nil
}

// Remove implements Tier.
func (t *CookieTier) Remove(key string) error {
	if t.w == nil {
		return errors.New("cookie tier has no response to write to")
	}
	http.SetCookie(t.w, &http.Cookie{
		Name:     key,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		SameSite: http.SameSiteStrictMode,
		HttpOnly: true,
		Secure:   t.secure,
	})
	t.pending[key] = nil
	return nil
}
