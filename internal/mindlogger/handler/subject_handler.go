package handler

import (
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/gin-gonic/gin"
)

type SubjectHandler struct {
	svc *service.SubjectService
}

func NewSubjectHandler(svc *service.SubjectService) *SubjectHandler {
	return &SubjectHandler{svc: svc}
}

// POST /subjects
func (h *SubjectHandler) Create(c *gin.Context) {
	var req service.SubjectRequest
	if !bind(c, &req) {
		return
	}
	if req.AppletID == "" {
		BadRequest(c, "applet_id is required")
		return
	}
	subject, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, subject)
}

// GET /subjects/:id
func (h *SubjectHandler) Get(c *gin.Context) {
	view, err := h.svc.Get(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, view)
}

// PUT /subjects/:id
func (h *SubjectHandler) Update(c *gin.Context) {
	var req service.SubjectRequest
	if !bind(c, &req) {
		return
	}
	subject, err := h.svc.Update(c.Request.Context(), GetUserID(c), c.Param("id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, subject)
}

type deleteSubjectRequest struct {
	DeleteAnswers bool `json:"delete_answers"`
}

// Delete soft-deletes the subject. delete_answers may come in the body or
// the query string.
// DELETE /subjects/:id
func (h *SubjectHandler) Delete(c *gin.Context) {
	var req deleteSubjectRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	deleteAnswers := req.DeleteAnswers || queryBool(c, "delete_answers")
	if err := h.svc.Delete(c.Request.Context(), GetUserID(c), c.Param("id"), deleteAnswers); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// POST /subjects/:id/relations/:target_id
func (h *SubjectHandler) CreateRelation(c *gin.Context) {
	var req service.RelationRequest
	if !bind(c, &req) {
		return
	}
	rel, err := h.svc.CreateRelation(c.Request.Context(), GetUserID(c), c.Param("id"), c.Param("target_id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, rel)
}

// DELETE /subjects/:id/relations/:target_id
func (h *SubjectHandler) DeleteRelation(c *gin.Context) {
	if err := h.svc.DeleteRelation(c.Request.Context(), GetUserID(c), c.Param("id"), c.Param("target_id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
