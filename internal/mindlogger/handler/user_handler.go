package handler

import (
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	svc *service.UserService
}

func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// GET /users/me
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.svc.Me(c.Request.Context(), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, user)
}

// ChangePassword swaps the password and queues re-encryption of the
// user's answers; the job can be polled under /jobs.
// POST /users/me/password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req service.ChangePasswordRequest
	if !bind(c, &req) {
		return
	}
	job, err := h.svc.ChangePassword(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"job_id": job.ID, "status": job.Status})
}

// GET /jobs
func (h *UserHandler) Jobs(c *gin.Context) {
	jobs, err := h.svc.Jobs(c.Request.Context(), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": jobs})
}

// GET /jobs/:id
func (h *UserHandler) Job(c *gin.Context) {
	job, err := h.svc.Job(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, job)
}

// POST /jobs/:id/cancel
func (h *UserHandler) CancelJob(c *gin.Context) {
	if err := h.svc.CancelJob(c.Request.Context(), GetUserID(c), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
