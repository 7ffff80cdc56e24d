package handler

import (
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/gin-gonic/gin"
)

type AnswerHandler struct {
	svc *service.AnswerService
}

func NewAnswerHandler(svc *service.AnswerService) *AnswerHandler {
	return &AnswerHandler{svc: svc}
}

// Submit stores an encrypted submission. A resubmitted submit_id answers
// 200 with the stored answer instead of 201.
// POST /answers
func (h *AnswerHandler) Submit(c *gin.Context) {
	var req service.AnswerRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.svc.Submit(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	if res.Duplicate {
		Success(c, res)
		return
	}
	Created(c, res)
}

func reviewFilter(c *gin.Context) (service.ReviewFilter, bool) {
	var f service.ReviewFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		BadRequest(c, "invalid query: "+err.Error())
		return f, false
	}
	if f.Page == 0 && f.PageSize == 0 {
		f.Page, f.PageSize = GetPagination(c)
	}
	return f, true
}

// GET /answers/applet/:applet_id/review
func (h *AnswerHandler) Review(c *gin.Context) {
	f, ok := reviewFilter(c)
	if !ok {
		return
	}
	page, err := h.svc.Review(c.Request.Context(), GetUserID(c), c.Param("applet_id"), f)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, ListResponse{Items: page.Items, Pagination: NewPagination(f.Page, f.PageSize, page.Total)})
}

// GET /answers/applet/:applet_id/assessment
func (h *AnswerHandler) Assessments(c *gin.Context) {
	f, ok := reviewFilter(c)
	if !ok {
		return
	}
	page, err := h.svc.Assessments(c.Request.Context(), GetUserID(c), c.Param("applet_id"), f)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, ListResponse{Items: page.Items, Pagination: NewPagination(f.Page, f.PageSize, page.Total)})
}

// GET /answers/applet/:applet_id/answers/:answer_id/assessment
func (h *AnswerHandler) Assessment(c *gin.Context) {
	view, err := h.svc.Assessment(c.Request.Context(), GetUserID(c), c.Param("applet_id"), c.Param("answer_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, view)
}

// GET /answers/applet/:applet_id/answers/:answer_id/notes?activity_id=
func (h *AnswerHandler) ListNotes(c *gin.Context) {
	notes, err := h.svc.ListNotes(c.Request.Context(), GetUserID(c), c.Param("applet_id"), c.Param("answer_id"), c.Query("activity_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": notes})
}

// POST /answers/applet/:applet_id/answers/:answer_id/notes?activity_id=
func (h *AnswerHandler) CreateNote(c *gin.Context) {
	var req service.NoteRequest
	if !bind(c, &req) {
		return
	}
	note, err := h.svc.CreateNote(c.Request.Context(), GetUserID(c), c.Param("applet_id"), c.Param("answer_id"), c.Query("activity_id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, note)
}

// PUT /answers/applet/:applet_id/answers/:answer_id/notes/:note_id
func (h *AnswerHandler) UpdateNote(c *gin.Context) {
	var req service.NoteRequest
	if !bind(c, &req) {
		return
	}
	note, err := h.svc.UpdateNote(c.Request.Context(), GetUserID(c), c.Param("applet_id"), c.Param("answer_id"), c.Param("note_id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, note)
}

// DELETE /answers/applet/:applet_id/answers/:answer_id/notes/:note_id
func (h *AnswerHandler) DeleteNote(c *gin.Context) {
	if err := h.svc.DeleteNote(c.Request.Context(), GetUserID(c), c.Param("applet_id"), c.Param("answer_id"), c.Param("note_id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// GET /alerts
func (h *AnswerHandler) Alerts(c *gin.Context) {
	page, pageSize := GetPagination(c)
	alerts, err := h.svc.Alerts(c.Request.Context(), GetUserID(c), page, pageSize)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, ListResponse{Items: alerts.Items, Pagination: NewPagination(page, pageSize, alerts.Total)})
}

// POST /alerts/:id/watched
func (h *AnswerHandler) WatchAlert(c *gin.Context) {
	if err := h.svc.WatchAlert(c.Request.Context(), GetUserID(c), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
