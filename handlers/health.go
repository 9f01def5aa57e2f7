package handlers

import (
	"net/http"

	"parley/utils"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports the latest dependency snapshot. Unconfigured
// dependencies are left out and never fail the check.
func HealthHandler(c *gin.Context) {
	status := utils.GetHealthStatus()
	healthy := status.Mongo == nil || *status.Mongo
	for _, ok := range status.Redis {
		healthy = healthy && ok
	}

	code := http.StatusOK
	state := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(code, gin.H{"status": state, "dependencies": status})
}
