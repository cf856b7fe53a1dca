package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DrXenon2/BuySell-sub000/internal/http/middleware"
	"github.com/DrXenon2/BuySell-sub000/internal/shared/apperr"
)

// Pinger is satisfied by *sql.DB and the Redis locker.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	Checks map[string]Pinger
}

// GET /healthz
func (h *HealthHandler) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for name, p := range h.Checks {
		if err := p.PingContext(ctx); err != nil {
			middleware.Fail(c, apperr.UnavailableErr("Service indisponible.", name+"_down", http.StatusServiceUnavailable).WithCause(err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
