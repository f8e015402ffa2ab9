package handler

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saas/backend/internal/infrastructure/logger"
	"github.com/saas/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	BaseHandler
	checks    map[string]CheckFunc
	timeout   time.Duration
	version   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler; checks are run on readiness probes
func NewHealthHandler(version string, checks map[string]CheckFunc) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		timeout:   2 * time.Second,
		version:   version,
		startTime: time.Now(),
	}
}

// LiveResponse reports process liveness
type LiveResponse struct {
	Status    string `json:"status" example:"ok"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// ReadyResponse reports the state of each dependency
type ReadyResponse struct {
	Status string            `json:"status" example:"ok"`
	Checks map[string]string `json:"checks"`
}

// Live godoc
//
//	@ID				healthLive
//	@Summary		Liveness probe
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	dto.Response{data=LiveResponse}
//	@Router			/health/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	h.Success(c, LiveResponse{
		Status:    "ok",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Ready godoc
//
//	@ID				healthReady
//	@Summary		Readiness probe
//	@Description	Pings the database and the job broker
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	dto.Response{data=ReadyResponse}
//	@Failure		503	{object}	dto.Response{data=ReadyResponse}
//	@Router			/health/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, check := range h.checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			status := "ok"
			if err := check(ctx); err != nil {
				status = "unavailable"
				logger.L(ctx).Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			}
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	resp := ReadyResponse{Status: "ok", Checks: results}
	for _, status := range results {
		if status != "ok" {
			resp.Status = "unavailable"
		}
	}
	if resp.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}
	h.Success(c, resp)
}
