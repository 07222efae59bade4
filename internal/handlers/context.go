package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewline/internal/middleware"
	"github.com/charlesng35/crewline/internal/models"
	"github.com/charlesng35/crewline/pkg/errors"
	"github.com/charlesng35/crewline/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requireActor returns the authenticated account or writes a 401 and returns nil.
func requireActor(c *gin.Context) *models.User {
	actor := middleware.Actor(c)
	if actor == nil {
		response.Error(c, errors.ErrUnauthorized)
		return nil
	}
	return actor
}
