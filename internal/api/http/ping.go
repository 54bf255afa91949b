package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Ping answers spec.md §6's GET /ping liveness probe.
func (h *Handlers) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": "pong"})
}

// Health is an ambient, additive probe (not in spec.md's explicit route
// list) reporting the fleet pool's current occupancy so operators can
// watch it without scraping /metrics.
func (h *Handlers) Health(c *gin.Context) {
	live, idle := h.pool.Stats()
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"status": "ok",
			"pool": gin.H{
				"live": live,
				"idle": idle,
			},
		},
	})
}
