package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HTTPErrorHandler renders *Error and *echo.HTTPError values as Body. Storage
// errors are logged with their cause and answered with a generic message.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func render(err error) (int, Body) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind.HTTPStatus(), Body{Error: ae.Kind.String(), Message: ae.PublicMessage()}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		} else if he.Message != nil && he.Code < http.StatusInternalServerError {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, Body{Error: codeForStatus(he.Code), Message: msg}
	}

	return http.StatusInternalServerError, Body{Error: KindStorage.String(), Message: StorageMessage}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return KindValidation.String()
	case http.StatusNotFound:
		return KindNotFound.String()
	case http.StatusConflict:
		return KindConflict.String()
	case http.StatusUnauthorized:
		return KindUnauthorized.String()
	case http.StatusForbidden:
		return KindForbidden.String()
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	}
	if status >= http.StatusInternalServerError {
		return KindStorage.String()
	}
	return "error"
}
