package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/crewline/internal/database"
	"github.com/charlesng35/crewline/pkg/logger"
)

// Health reports liveness together with a database ping.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		state := "ok"
		if err := database.Ping(db); err != nil {
			logger.WithModule("health").Warn("database ping failed", zap.Error(err))
			status = http.StatusServiceUnavailable
			state = "degraded"
		}

		c.JSON(status, gin.H{
			"success":   status == http.StatusOK,
			"status":    state,
			"checkedAt": time.Now().UTC(),
		})
	}
}
