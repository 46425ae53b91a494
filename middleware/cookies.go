package middleware

import (
	"net/http"

	goShield "github.com/MrEthical07/goShield"
)

// cookieWriter emits pending session and remember cookies once, right
// before the response headers are sent.
type cookieWriter struct {
	http.ResponseWriter
	req     *goShield.Request
	opts    Options
	written bool
}

func (c *cookieWriter) WriteHeader(code int) {
	c.flushCookies()
	c.ResponseWriter.WriteHeader(code)
}

func (c *cookieWriter) Write(b []byte) (int, error) {
	c.flushCookies()
	return c.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (c *cookieWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}

func (c *cookieWriter) flushCookies() {
	if c.written {
		return
	}
	c.written = true

	if sid, changed := c.req.SessionUpdate(); changed {
		http.SetCookie(c.ResponseWriter, c.cookie(c.opts.SessionCookie, sid, 0))
	}
	if token, changed := c.req.RememberUpdate(); changed {
		http.SetCookie(c.ResponseWriter, c.cookie(c.opts.RememberCookie, token, int(c.opts.RememberMaxAge.Seconds())))
	}
}

// cookie builds an HttpOnly cookie. An empty value deletes it.
func (c *cookieWriter) cookie(name, value string, maxAge int) *http.Cookie {
	if value == "" {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.opts.CookiePath,
		Domain:   c.opts.CookieDomain,
		MaxAge:   maxAge,
		Secure:   c.opts.Secure,
		HttpOnly: true,
		SameSite: c.opts.SameSite,
	}
}
