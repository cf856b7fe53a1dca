package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/DrXenon2/BuySell-sub000/internal/shared/apperr"
)

func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandler renders the last error recorded with Fail as
// {success:false, message, request_id[, fields]}.
func ErrorHandler(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := apperr.HTTPStatus(err)
		rid := GetRequestID(c)

		level := slog.LevelWarn
		if status >= 500 {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("request_id", rid),
			slog.Int("status", status),
			slog.Any("err", err),
		}
		if ae, ok := apperr.As(err); ok {
			attrs = append(attrs, slog.String("kind", string(ae.Kind)))
			if ae.Code != "" {
				attrs = append(attrs, slog.String("code", ae.Code))
			}
		}
		l.LogAttrs(c.Request.Context(), level, "request_failed", attrs...)

		payload := gin.H{
			"success":    false,
			"message":    apperr.PublicMessage(err),
			"request_id": rid,
		}
		if ae, ok := apperr.As(err); ok {
			if len(ae.Fields) > 0 {
				payload["fields"] = ae.Fields
			}
			if ae.Code != "" {
				payload["code"] = ae.Code
			}
		}
		c.AbortWithStatusJSON(status, payload)
	}
}
