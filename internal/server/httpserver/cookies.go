package httpserver

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/labstack/echo/v4"
)

func (s *HTTPServer) newCookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *HTTPServer) setSessionCookie(c echo.Context, token string) {
	c.SetCookie(s.newCookie(common.SessionCookieName, token, s.opts.SessionValidity))
}

func (s *HTTPServer) setRememberCookie(c echo.Context, token string) {
	c.SetCookie(s.newCookie(common.RememberTokenCookieName, token, s.opts.RememberValidity))
}

func (s *HTTPServer) clearAuthCookies(c echo.Context) {
	for _, name := range []string{common.SessionCookieName, common.RememberTokenCookieName} {
		ck := s.newCookie(name, "", 0)
		ck.MaxAge = -1
		c.SetCookie(ck)
	}
}
