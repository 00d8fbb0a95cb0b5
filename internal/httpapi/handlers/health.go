package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/market-research/internal/common"
)

type healthResp struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Jobs    map[string]int `json:"jobs"`
	Running int            `json:"running"`
}

// Health reports liveness plus job counts. A store error degrades the status
// but still answers 200 so the process is not restarted for a backend outage.
func (h *Handler) Health(c *gin.Context) {
	resp := healthResp{Status: "healthy", Version: h.Version, Jobs: map[string]int{}}
	if h.Runner != nil {
		resp.Running = h.Runner.Running()
	}
	stats, err := h.Jobs.Stats(c.Request.Context())
	if err != nil {
		h.Log.Warn("health: job stats", "err", err)
		resp.Status = "degraded"
	}
	for status, n := range stats {
		resp.Jobs[string(status)] = n
	}
	c.JSON(http.StatusOK, common.Envelope{Code: 0, Message: "ok", Data: resp})
}
