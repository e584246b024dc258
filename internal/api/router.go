package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/handlers"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/middleware"
	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/realtime"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(db *gorm.DB, hub *realtime.Hub, games *handlers.GameHandler, ws *handlers.WSHandler) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if hub == nil {
		return nil, fmt.Errorf("realtime hub must be provided")
	}
	if games == nil || ws == nil {
		return nil, fmt.Errorf("handlers must be provided")
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.GET("/health", handlers.Health(db, hub))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws/games/:id", ws.Attach)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/games", games.Create)
		apiGroup.GET("/games", games.List)
		apiGroup.GET("/games/:id", games.Get)
		apiGroup.GET("/games/:id/export", games.Export)
		apiGroup.POST("/games/:id/import", games.Import)
		apiGroup.GET("/games/:id/analysis", games.Analysis)
	}

	return r, nil
}
