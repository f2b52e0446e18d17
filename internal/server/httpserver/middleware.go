package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"
	ctxPatient      = "patient"
)

func requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(headerRequestID)
			if rid == "" || len(rid) > 64 {
				rid = uuid.NewString()
			}
			c.Set(ctxRequestID, rid)
			c.Response().Header().Set(headerRequestID, rid)
			return next(c)
		}
	}
}

func requestIDFrom(c echo.Context) string {
	rid, _ := c.Get(ctxRequestID).(string)
	return rid
}

func (s *HTTPServer) recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					var stack [4096]byte
					n := runtime.Stack(stack[:], false)

					s.logger.Error(c.Request().Context(), "panic recovered",
						"request_id", requestIDFrom(c),
						"panic", fmt.Sprintf("%v", r),
						"stack", string(stack[:n]))

					err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
				}
			}()
			return next(c)
		}
	}
}

// requestLogger writes one line per request. Errors are rendered here so the
// logged status is the one sent to the client.
func (s *HTTPServer) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			args := []any{
				"request_id", requestIDFrom(c),
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"latency", time.Since(start),
				"remote_ip", c.RealIP(),
			}
			if err != nil {
				s.logger.Warn(req.Context(), "request", append(args, "error", err)...)
			} else {
				s.logger.Info(req.Context(), "request", args...)
			}
			return nil
		}
	}
}

func (s *HTTPServer) observe() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status, _ = errorStatus(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			s.metrics.ObserveHTTPRequest(c.Request().Method, route, status, time.Since(start))
			return err
		}
	}
}

// bodyLimit rejects bodies above limit; limit <= 0 disables the check.
func bodyLimit(limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if limit <= 0 || req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > limit {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
			}
			req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)
			return next(c)
		}
	}
}

// authenticate resolves the patient from the session cookie, falling back to
// the remember-me cookie. A restored session gets a fresh session cookie.
func (s *HTTPServer) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var session, remember string
		if ck, err := c.Cookie(common.SessionCookieName); err == nil {
			session = ck.Value
		}
		if ck, err := c.Cookie(common.RememberTokenCookieName); err == nil {
			remember = ck.Value
		}

		res, err := s.accounts.Authenticate(c.Request().Context(), session, remember)
		if err != nil {
			if !rejectedCredentials(err) {
				return err
			}
			if remember != "" {
				s.metrics.AuthAttempt("remember", false)
			}
			if session != "" || remember != "" {
				s.clearAuthCookies(c)
			}
			return err
		}
		if res.SessionToken != "" {
			s.metrics.AuthAttempt("remember", true)
			s.setSessionCookie(c, res.SessionToken)
		}

		c.Set(ctxPatient, res.Patient)
		return next(c)
	}
}

// rejectedCredentials reports whether err means the presented cookies are no
// longer valid. Other errors leave the cookies in place so the client can retry.
func rejectedCredentials(err error) bool {
	return errors.Is(err, common.ErrorUnauthorized) ||
		errors.Is(err, common.ErrInvalidToken) ||
		errors.Is(err, common.ErrTokenExpired)
}

func patientFrom(c echo.Context) *models.Patient {
	p, _ := c.Get(ctxPatient).(*models.Patient)
	return p
}
