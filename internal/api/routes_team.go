package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewline/internal/handlers"
)

func registerTeamRoutes(api *gin.RouterGroup, invitations *handlers.InvitationHandler, members *handlers.MemberHandler) {
	team := api.Group("/team")

	invites := team.Group("/invitations")
	{
		invites.GET("", invitations.List)
		invites.GET("/received", invitations.ListReceived)
		invites.POST("", invitations.Create)
		invites.POST("/lookup", invitations.Lookup)
		invites.GET("/:id", invitations.Get)
		invites.POST("/:id/accept", invitations.Accept)
		invites.POST("/:id/decline", invitations.Decline)
		invites.POST("/:id/resend", invitations.Resend)
		invites.DELETE("/:id", invitations.Revoke)
	}

	roster := team.Group("/members")
	{
		roster.GET("", members.List)
		roster.GET("/:id", members.Get)
	}
}
