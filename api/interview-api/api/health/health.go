// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package health_check_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/interview/api/interview-api/config"
	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/connectors"
	"github.com/rapidaai/interview/pkg/utils"
)

type HealthCheckApi struct {
	cfg    *config.AppConfig
	logger commons.Logger
	db     connectors.DatabaseConnector
	redis  connectors.RedisConnector
}

// New builds the health handlers. redis may be nil when nothing uses it.
func New(cfg *config.AppConfig, logger commons.Logger, db connectors.DatabaseConnector, redis connectors.RedisConnector) *HealthCheckApi {
	return &HealthCheckApi{cfg: cfg, logger: logger, db: db, redis: redis}
}

func (h *HealthCheckApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"healthy": true, "service": h.cfg.Name, "version": h.cfg.Version, "environment": utils.FromEnvironmentStr(h.cfg.Environment).Get()})
}

// Readiness fails while any connector the service depends on is down.
func (h *HealthCheckApi) Readiness(c *gin.Context) {
	checks := gin.H{}
	ready := true
	if h.db != nil {
		ok := h.db.IsConnected(c.Request.Context())
		checks[h.db.Name()] = ok
		ready = ready && ok
	}
	if h.redis != nil {
		ok := h.redis.IsConnected(c.Request.Context())
		checks[h.redis.Name()] = ok
		ready = ready && ok
	}
	if !ready {
		h.logger.Warnw("Readiness check failed", "checks", checks)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "checks": checks})
}
