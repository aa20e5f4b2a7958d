// Package system serves the operational endpoints: liveness, readiness
// and the Prometheus scrape target. It has no domain dependencies, so it
// registers through the route registry instead of being mounted by the
// serve command.
package system

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registryroute "github.com/recallhq/recall-service/internal/registry/route"
)

var (
	ready     atomic.Bool
	startedAt = time.Now()
)

// MarkReady flips the readiness probe to 200. Called once the serve
// command has wired stores, routes and background services.
func MarkReady() {
	ready.Store(true)
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 0,
		Loader: func(r *gin.Engine) error {
			r.GET("/health", health)
			r.GET("/ready", readiness)
			r.GET("/metrics", gin.WrapH(promhttp.Handler()))
			return nil
		},
	})
}

// health is the liveness probe: the process is up and serving requests.
func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(startedAt).Seconds()),
	})
}

// readiness holds load-balancer traffic until startup has completed.
func readiness(c *gin.Context) {
	if !ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
