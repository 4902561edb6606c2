package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const readyTimeout = 2 * time.Second

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type OpsController struct {
	checks []ReadinessCheck
	logger *zap.Logger
}

func NewOpsController(r *gin.Engine, logger *zap.Logger, checks ...ReadinessCheck) *OpsController {
	oc := &OpsController{
		checks: checks,
		logger: logger,
	}

	r.GET(RouteHealth, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET(RouteReady, oc.ReadyHandler)
	r.GET(RouteMetrics, gin.WrapH(promhttp.Handler()))

	return oc
}

func (oc *OpsController) ReadyHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	failed := make(map[string]string)
	for _, chk := range oc.checks {
		if err := chk.Check(ctx); err != nil {
			failed[chk.Name] = err.Error()
			oc.logger.Warn("readiness check failed", zap.String("check", chk.Name), zap.Error(err))
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
