package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

func TestRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestID(logger.NewNop()))

	var seen string
	var hasLogger bool
	e.GET("/ping", func(c echo.Context) error {
		seen, _ = c.Get("request_id").(string)
		hasLogger = logger.FromContext(c.Request().Context(), nil) != nil
		return c.NoContent(http.StatusNoContent)
	})

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		got := rec.Header().Get(HeaderRequestID)
		if got == "" || got != seen {
			t.Errorf("header %q, context %q", got, seen)
		}
		if !hasLogger {
			t.Error("request context carries no logger")
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderRequestID, "abc-123")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if got := rec.Header().Get(HeaderRequestID); got != "abc-123" {
			t.Errorf("header = %q, want abc-123", got)
		}
	})
}
