package handler

import (
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/gin-gonic/gin"
)

type AccessHandler struct {
	svc *service.AccessService
}

func NewAccessHandler(svc *service.AccessService) *AccessHandler {
	return &AccessHandler{svc: svc}
}

// Roles lists the caller's roles on the applet, highest first.
// GET /applets/:id/roles
func (h *AccessHandler) Roles(c *gin.Context) {
	roles, err := h.svc.Roles(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"roles": roles})
}

// DELETE /applets/:id/access/:user_id?role=reviewer&role=editor
func (h *AccessHandler) RemoveRole(c *gin.Context) {
	roles := c.QueryArray("role")
	if len(roles) == 0 {
		BadRequest(c, "role is required")
		return
	}
	if err := h.svc.RemoveRole(c.Request.Context(), GetUserID(c), c.Param("id"), c.Param("user_id"), roles); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// POST /applets/:id/transfer_ownership/:user_id
func (h *AccessHandler) TransferOwnership(c *gin.Context) {
	if err := h.svc.TransferOwnership(c.Request.Context(), GetUserID(c), c.Param("id"), c.Param("user_id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// POST /applets/:id/invitations
func (h *AccessHandler) Invite(c *gin.Context) {
	var req service.InviteRequest
	if !bind(c, &req) {
		return
	}
	inv, err := h.svc.Invite(c.Request.Context(), GetUserID(c), c.Param("id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, inv)
}

// POST /invitations/:key/accept
func (h *AccessHandler) AcceptInvitation(c *gin.Context) {
	access, err := h.svc.AcceptInvitation(c.Request.Context(), c.Param("key"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, access)
}

// DELETE /invitations/:key/decline
func (h *AccessHandler) DeclineInvitation(c *gin.Context) {
	if err := h.svc.DeclineInvitation(c.Request.Context(), c.Param("key"), GetUserID(c)); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// GET /workspaces/:owner_id/pins
func (h *AccessHandler) ListPins(c *gin.Context) {
	pins, err := h.svc.ListPins(c.Request.Context(), GetUserID(c), c.Param("owner_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": pins})
}

// POST /workspaces/:owner_id/managers/:user_id/pin
func (h *AccessHandler) PinManager(c *gin.Context) {
	target := c.Param("user_id")
	h.togglePin(c, &service.PinRequest{
		OwnerID:      c.Param("owner_id"),
		Role:         entity.RoleManager,
		PinnedUserID: &target,
	})
}

// POST /workspaces/:owner_id/respondents/:user_id/pin
func (h *AccessHandler) PinRespondent(c *gin.Context) {
	target := c.Param("user_id")
	h.togglePin(c, &service.PinRequest{
		OwnerID:         c.Param("owner_id"),
		Role:            entity.RoleRespondent,
		PinnedSubjectID: &target,
	})
}

func (h *AccessHandler) togglePin(c *gin.Context, req *service.PinRequest) {
	pinned, err := h.svc.TogglePin(c.Request.Context(), GetUserID(c), req)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"pinned": pinned})
}
