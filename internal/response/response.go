// Package response renders JSON errors for the HTTP API.
package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/apperr"
	"github.com/fekuna/omnipos-stock-service/pkg/i18n"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

type envelope struct {
	Error ErrorBody `json:"error"`
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	e, ok := apperr.As(err)
	if !ok {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he.Code
		}
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindPersistence:
		return http.StatusServiceUnavailable
	}
	switch e.Code {
	case apperr.CodeInsufficient:
		return http.StatusConflict
	case apperr.CodeBarcodeExists:
		return http.StatusConflict
	case apperr.CodeSystemBusy:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

// ErrorHandler returns an echo.HTTPErrorHandler that localizes apperr codes
// from the request's Accept-Language header.
func ErrorHandler(tr *i18n.Translator, base logger.ZapLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		log := logger.FromContext(c.Request().Context(), base)
		status := Status(err)
		lang := c.Request().Header.Get("Accept-Language")

		body := ErrorBody{Code: apperr.CodeInternal}
		if e, ok := apperr.As(err); ok {
			body.Code = e.Code
			body.Fields = e.Fields
			body.Message = tr.Localize(e.Code, e.Fields, lang)
		} else {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				body.Code = http.StatusText(he.Code)
				body.Message = fmt.Sprint(he.Message)
			} else {
				body.Message = tr.Localize(apperr.CodeInternal, nil, lang)
			}
		}

		if status >= http.StatusInternalServerError {
			log.Error("request failed", zap.Int("status", status), zap.Error(err))
		} else {
			log.Warn("request rejected", zap.Int("status", status), zap.String("code", body.Code))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, envelope{Error: body})
		}
		if err != nil {
			log.Error("failed to write error response", zap.Error(err))
		}
	}
}

// BadRequest wraps a binding failure as an invalid_request validation error.
func BadRequest(err error) error {
	return &apperr.Error{Kind: apperr.KindValidation, Code: apperr.CodeInvalidRequest, Err: err}
}
