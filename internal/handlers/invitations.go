package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewline/internal/models"
	"github.com/charlesng35/crewline/internal/services"
	"github.com/charlesng35/crewline/pkg/errors"
	"github.com/charlesng35/crewline/pkg/response"
)

// InvitationHandler exposes the team invitation lifecycle over HTTP.
type InvitationHandler struct {
	service *services.InvitationService
}

// NewInvitationHandler constructs an invitation handler.
func NewInvitationHandler(service *services.InvitationService) (*InvitationHandler, error) {
	if service == nil {
		return nil, errors.New("HANDLER_CONFIG", "invitation service is required", http.StatusInternalServerError)
	}
	return &InvitationHandler{service: service}, nil
}

type createInvitationRequest struct {
	Email            string `json:"email" validate:"required,email,max=320"`
	Name             string `json:"name" validate:"omitempty,max=255"`
	Role             string `json:"role" validate:"omitempty,role"`
	SendNotification *bool  `json:"sendNotification"`
}

type respondInvitationRequest struct {
	NotificationID string `json:"notificationId" validate:"omitempty,max=36"`
}

type lookupInvitationRequest struct {
	Token string `json:"token" validate:"required"`
}

type createInvitationResponse struct {
	Invitation *models.Invitation `json:"invitation"`
	Token      string             `json:"token"`
}

// List returns invitations sent by the actor, optionally filtered by ?status=.
func (h *InvitationHandler) List(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}

	status := models.InvitationStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	if status != "" && !status.Valid() {
		response.Error(c, errors.NewBadRequest("status must be one of: pending accepted declined expired"))
		return
	}

	rows, err := h.service.ListSent(requestContext(c), actor.ID, status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, rows, &response.Meta{Total: len(rows)})
}

// ListReceived returns pending invitations addressed to the actor.
func (h *InvitationHandler) ListReceived(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}

	rows, err := h.service.ListReceived(requestContext(c), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, rows, &response.Meta{Total: len(rows)})
}

// Create invites an e-mail address onto the actor's team.
func (h *InvitationHandler) Create(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}

	var req createInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	notify := true
	if req.SendNotification != nil {
		notify = *req.SendNotification
	}

	invitation, token, err := h.service.Create(requestContext(c), services.CreateInvitationInput{
		InviterID: actor.ID,
		Email:     req.Email,
		Name:      req.Name,
		Role:      req.Role,
		Notify:    notify,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, createInvitationResponse{Invitation: invitation, Token: token})
}

// Get returns a single invitation visible to the actor.
func (h *InvitationHandler) Get(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}

	invitation, err := h.service.Get(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, invitation)
}

// Accept joins the inviter's team.
func (h *InvitationHandler) Accept(c *gin.Context) {
	h.respond(c, true)
}

// Decline refuses the invitation.
func (h *InvitationHandler) Decline(c *gin.Context) {
	h.respond(c, false)
}

func (h *InvitationHandler) respond(c *gin.Context, accept bool) {
	actor := requireActor(c)
	if actor == nil {
		return
	}

	var req respondInvitationRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	var (
		invitation *models.Invitation
		err        error
	)
	if accept {
		invitation, err = h.service.Accept(requestContext(c), c.Param("id"), actor, strings.TrimSpace(req.NotificationID))
	} else {
		invitation, err = h.service.Decline(requestContext(c), c.Param("id"), actor, strings.TrimSpace(req.NotificationID))
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, invitation)
}

// Resend refreshes the expiry and token of a pending invitation.
func (h *InvitationHandler) Resend(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}

	invitation, err := h.service.Resend(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, invitation)
}

// Revoke deletes an invitation and its notifications.
func (h *InvitationHandler) Revoke(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}

	if err := h.service.Revoke(requestContext(c), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Lookup resolves the invitation behind an accept link token.
func (h *InvitationHandler) Lookup(c *gin.Context) {
	if requireActor(c) == nil {
		return
	}

	var req lookupInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invitation, err := h.service.LookupByToken(requestContext(c), req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, invitation)
}
