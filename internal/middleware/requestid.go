package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

const HeaderRequestID = "X-Request-ID"

// RequestID tags each request with an id, reusing the caller's X-Request-ID
// when present, and attaches a logger carrying it to the request context.
func RequestID(base logger.ZapLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := req.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
				req.Header.Set(HeaderRequestID, requestID)
			}
			c.Response().Header().Set(HeaderRequestID, requestID)
			c.Set("request_id", requestID)

			log := base.With(
				zap.String("request_id", requestID),
				zap.String("method", req.Method),
				zap.String("path", c.Path()),
			)
			c.SetRequest(req.WithContext(logger.WithContext(req.Context(), log)))

			return next(c)
		}
	}
}
