package middleware

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	goShield "github.com/MrEthical07/goShield"
)

// Options controls how Authenticate maps HTTP onto a goShield.Request.
type Options struct {
	SessionCookie  string
	RememberCookie string
	CookiePath     string
	CookieDomain   string
	// Secure marks both cookies Secure. Leave it on outside local development.
	Secure   bool
	SameSite http.SameSite
	// RememberMaxAge bounds the remember cookie. Zero means 30 days.
	RememberMaxAge time.Duration
	// ClientIP overrides the RemoteAddr host, e.g. behind a trusted proxy.
	ClientIP func(*http.Request) string
}

func (o Options) withDefaults() Options {
	if o.SessionCookie == "" {
		o.SessionCookie = "goshield_session"
	}
	if o.RememberCookie == "" {
		o.RememberCookie = "goshield_remember"
	}
	if o.CookiePath == "" {
		o.CookiePath = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	if o.RememberMaxAge <= 0 {
		o.RememberMaxAge = 30 * 24 * time.Hour
	}
	if o.ClientIP == nil {
		o.ClientIP = remoteIP
	}
	return o
}

// Authenticate attaches a request-scoped goShield.Auth to the request
// context. Session and remember cookies replaced or cleared while the
// handler runs are written back before the first byte of the response.
func Authenticate(engine *goShield.Engine, opts Options) func(http.Handler) http.Handler {
	opts = opts.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "authentication unavailable", http.StatusInternalServerError)
				return
			}

			req := &goShield.Request{
				ClientIP:  opts.ClientIP(r),
				UserAgent: r.UserAgent(),
			}
			if c, err := r.Cookie(opts.SessionCookie); err == nil {
				req.SessionID = c.Value
			}
			if c, err := r.Cookie(opts.RememberCookie); err == nil {
				req.RememberToken = c.Value
			}
			if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
				req.BearerToken = token
			}

			cw := &cookieWriter{ResponseWriter: w, req: req, opts: opts}
			ctx := goShield.WithAuth(r.Context(), engine.Auth(req))
			next.ServeHTTP(cw, r.WithContext(ctx))
			cw.flushCookies()
		})
	}
}

// Require rejects requests that the named authenticator does not
// authenticate. An empty name uses the engine default. Throttled clients get
// 429 with Retry-After; store failures get 503.
func Require(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := goShield.AuthFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			h, err := auth.Use(name)
			if err != nil {
				http.Error(w, "authentication misconfigured", http.StatusInternalServerError)
				return
			}

			loggedIn, err := h.LoggedIn(r.Context())
			var throttled *goShield.ThrottledError
			switch {
			case errors.As(err, &throttled):
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(throttled.RetryAfter)))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			case err != nil:
				http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
				return
			case !loggedIn:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
