package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/realtime"
)

// Health reports process liveness plus database reachability and the live
// connection count.
func Health(db *gorm.DB, hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		dbOK := true

		if db != nil {
			sqlDB, err := db.DB()
			if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				dbOK = false
				status = http.StatusServiceUnavailable
			}
		}

		body := gin.H{
			"success":    dbOK,
			"database":   dbOK,
			"checked_at": time.Now().UTC(),
		}
		if hub != nil {
			body["connections"] = hub.ConnectionCount()
		}
		c.JSON(status, body)
	}
}
