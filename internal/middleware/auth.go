package middleware

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/crewline/internal/auth"
	"github.com/charlesng35/crewline/internal/models"
	"github.com/charlesng35/crewline/pkg/errors"
	"github.com/charlesng35/crewline/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxActorKey  = "actor"
)

// ActorLookup loads the account behind a validated token.
type ActorLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Auth enforces JWT authentication and loads the acting account into the request context.
func Auth(jwt *iauth.JWTService, users ActorLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		actor, err := users.FindByID(c.Request.Context(), claims.UserID)
		if err != nil {
			var appErr *errors.AppError
			if stderrors.As(err, &appErr) && !appErr.IsInternal() {
				err = errors.ErrUnauthorized
			}
			response.Error(c, err)
			c.Abort()
			return
		}
		if !actor.IsActive {
			response.Error(c, errors.NewForbidden("Account is disabled"))
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, actor.ID)
		c.Set(CtxActorKey, actor)

		c.Next()
	}
}

// Actor returns the account stored by Auth, or nil when the route is unauthenticated.
func Actor(c *gin.Context) *models.User {
	value, ok := c.Get(CtxActorKey)
	if !ok {
		return nil
	}
	actor, _ := value.(*models.User)
	return actor
}

// bearerToken reads the Authorization header. Websocket upgrades may pass the token as the
// access_token query parameter because browsers cannot set headers on them.
func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return strings.TrimSpace(c.Query("access_token"))
	}
	return ""
}
