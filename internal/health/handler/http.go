package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Live serves GET /healthz. It only reports that the process is serving requests.
func Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready returns the GET /readyz handler: 200 when every check passes, 503 otherwise.
func Ready(checker *Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := checker.Check(c.Request.Context())
		status := http.StatusOK
		if !r.Ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, r)
	}
}
