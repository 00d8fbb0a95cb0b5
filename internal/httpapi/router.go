package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/market-research/internal/common"
	"github.com/suPer8Hu/market-research/internal/httpapi/handlers"
	"github.com/suPer8Hu/market-research/internal/httpapi/middleware"
)

type RouterConfig struct {
	JWTSecret   string
	CORSOrigins []string
	Log         *slog.Logger
}

func NewRouter(h *handlers.Handler, cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/health", h.Health)

	// jobs (bearer token required when AUTH_JWT_SECRET is set)
	authGroup := r.Group("/jobs")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.POST("", h.CreateJob)
	authGroup.GET("", h.ListJobs)
	authGroup.GET("/:id", h.GetJob)
	authGroup.GET("/:id/export", h.ExportJob)
	authGroup.DELETE("/:id", h.DeleteJob)
	return r
}
