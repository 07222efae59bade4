package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewline/internal/services"
	"github.com/charlesng35/crewline/pkg/errors"
	"github.com/charlesng35/crewline/pkg/response"
)

// MemberHandler serves the actor's derived team roster.
type MemberHandler struct {
	roster *services.RosterService
}

// NewMemberHandler constructs a member handler.
func NewMemberHandler(roster *services.RosterService) (*MemberHandler, error) {
	if roster == nil {
		return nil, errors.New("HANDLER_CONFIG", "roster service is required", http.StatusInternalServerError)
	}
	return &MemberHandler{roster: roster}, nil
}

// List returns everyone on the actor's team, pending invitees included.
func (h *MemberHandler) List(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}

	entries, err := h.roster.ResolveRoster(requestContext(c), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, entries, &response.Meta{Total: len(entries)})
}

// Get returns one account from the roster with its projects.
func (h *MemberHandler) Get(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}

	member, err := h.roster.ResolveMember(requestContext(c), actor.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}
