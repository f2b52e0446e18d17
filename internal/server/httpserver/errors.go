package httpserver

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/server/identity"
	"github.com/dmitrijs2005/patientvault/internal/server/services"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
}

// errorStatus maps an error to its HTTP status and client-facing message.
// Unknown errors become 500 without details.
func errorStatus(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, "request body too large"
	}

	switch {
	case errors.Is(err, common.ErrorValidation), errors.Is(err, common.ErrorNotGrouped):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, identity.ErrIdentifierUnknown):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, identity.ErrOTPMismatch):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, identity.ErrProviderRejected):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, identity.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "identity provider unavailable, try again later"
	case errors.Is(err, services.ErrNothingToExport):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrArchiveTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *HTTPServer) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed",
			"request_id", requestIDFrom(c), "path", c.Request().URL.Path, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, errorResponse{Error: msg})
	}
	if err != nil {
		s.logger.Error(c.Request().Context(), "write error response", "error", err)
	}
}
