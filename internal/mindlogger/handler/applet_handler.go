package handler

import (
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/gin-gonic/gin"
)

type AppletHandler struct {
	svc *service.AppletService
}

func NewAppletHandler(svc *service.AppletService) *AppletHandler {
	return &AppletHandler{svc: svc}
}

// List returns the applets the caller holds any role on.
// GET /applets
func (h *AppletHandler) List(c *gin.Context) {
	applets, err := h.svc.List(c.Request.Context(), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": applets})
}

// POST /applets
func (h *AppletHandler) Create(c *gin.Context) {
	var req service.AppletRequest
	if !bind(c, &req) {
		return
	}
	applet, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, applet)
}

// GET /applets/:id
func (h *AppletHandler) Get(c *gin.Context) {
	applet, err := h.svc.GetFull(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, applet)
}

// GET /applets/link/:link
func (h *AppletHandler) GetByLink(c *gin.Context) {
	applet, err := h.svc.GetByLink(c.Request.Context(), GetUserID(c), c.Param("link"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, applet)
}

// Update replaces the applet; a changed payload produces a new version.
// PUT /applets/:id
func (h *AppletHandler) Update(c *gin.Context) {
	var req service.AppletRequest
	if !bind(c, &req) {
		return
	}
	applet, err := h.svc.Update(c.Request.Context(), GetUserID(c), c.Param("id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, applet)
}

// DELETE /applets/:id
func (h *AppletHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), GetUserID(c), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// GET /applets/:id/versions
func (h *AppletHandler) Versions(c *gin.Context) {
	versions, err := h.svc.Versions(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": versions})
}

// GET /applets/:id/versions/:version
func (h *AppletHandler) GetVersion(c *gin.Context) {
	history, err := h.svc.GetHistory(c.Request.Context(), GetUserID(c), c.Param("id"), c.Param("version"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, history)
}

// GET /applets/:id/versions/:version/changes
func (h *AppletHandler) Changes(c *gin.Context) {
	change, err := h.svc.Changes(c.Request.Context(), GetUserID(c), c.Param("id"), c.Param("version"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, change)
}

// PUT /applets/:id/encryption
func (h *AppletHandler) SetEncryption(c *gin.Context) {
	var req service.EncryptionRequest
	if !bind(c, &req) {
		return
	}
	applet, err := h.svc.SetEncryption(c.Request.Context(), GetUserID(c), c.Param("id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, applet)
}

// POST /applets/:id/link
func (h *AppletHandler) CreateLink(c *gin.Context) {
	var req service.LinkRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	applet, err := h.svc.CreateLink(c.Request.Context(), GetUserID(c), c.Param("id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, gin.H{"link": applet.Link, "require_login": applet.RequireLogin})
}

// DELETE /applets/:id/link
func (h *AppletHandler) DeleteLink(c *gin.Context) {
	if err := h.svc.DeleteLink(c.Request.Context(), GetUserID(c), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
