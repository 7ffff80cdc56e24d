package handler

import (
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/gin-gonic/gin"
)

type WorkspaceHandler struct {
	svc *service.WorkspaceService
}

func NewWorkspaceHandler(svc *service.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{svc: svc}
}

// GET /workspaces/:owner_id
func (h *WorkspaceHandler) Get(c *gin.Context) {
	ws, err := h.svc.Workspace(c.Request.Context(), GetUserID(c), c.Param("owner_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, ws)
}

// SetArbitrary routes the workspace's answers to an external database.
// POST /workspaces/:owner_id/arbitrary
func (h *WorkspaceHandler) SetArbitrary(c *gin.Context) {
	var req service.ArbitraryServerRequest
	if !bind(c, &req) {
		return
	}
	ws, err := h.svc.SetArbitraryServer(c.Request.Context(), GetUserID(c), c.Param("owner_id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, ws)
}
