package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewline/internal/handlers"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler, stream *handlers.RealtimeHandler) {
	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.POST("/:id/read", handler.MarkRead)
		if stream != nil {
			group.GET("/stream", stream.Stream)
		}
	}
}
