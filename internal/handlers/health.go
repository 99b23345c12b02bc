package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	ObjectStore string `json:"objectStore"`
	Scorer      string `json:"scorer"`
	Environment string `json:"environment"`
}

// Health reports liveness of the API and its collaborators. The scorer
// check is informational; compare requests are never gated on it.
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "ok"
	if err := h.db.Ping(ctx); err != nil {
		dbStatus = "error"
		h.log.Error().Err(err).Msg("database ping failed")
	}

	cacheStatus := "ok"
	if err := h.cache.Ping(ctx).Err(); err != nil {
		cacheStatus = "error"
		h.log.Error().Err(err).Msg("redis ping failed")
	}

	storeStatus := "ok"
	if err := h.store.EnsureBucket(ctx); err != nil {
		storeStatus = "error"
		h.log.Error().Err(err).Msg("object store check failed")
	}

	scorerStatus := "ok"
	if err := h.scorerClient.Health(ctx); err != nil {
		scorerStatus = "unavailable"
		h.log.Warn().Err(err).Msg("scorer health check failed")
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Database:    dbStatus,
		Cache:       cacheStatus,
		ObjectStore: storeStatus,
		Scorer:      scorerStatus,
		Environment: h.cfg.Environment,
	})
}
