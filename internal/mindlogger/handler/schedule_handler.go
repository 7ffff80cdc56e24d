package handler

import (
	"net/http"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/gin-gonic/gin"
)

// upcomingDays is the window served when the client sends no range.
const upcomingDays = 7

type ScheduleHandler struct {
	svc *service.ScheduleService
	now func() time.Time
}

func NewScheduleHandler(svc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{svc: svc, now: func() time.Time { return time.Now().UTC() }}
}

// GET /applets/:id/events?respondent_id=
func (h *ScheduleHandler) List(c *gin.Context) {
	var respondentID *string
	if r := c.Query("respondent_id"); r != "" {
		respondentID = &r
	}
	events, err := h.svc.List(c.Request.Context(), GetUserID(c), c.Param("id"), respondentID)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": events})
}

// POST /applets/:id/events
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req service.EventRequest
	if !bind(c, &req) {
		return
	}
	ev, err := h.svc.Create(c.Request.Context(), GetUserID(c), c.Param("id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, ev)
}

// GET /applets/:id/events/:event_id
func (h *ScheduleHandler) Get(c *gin.Context) {
	ev, err := h.svc.Get(c.Request.Context(), GetUserID(c), c.Param("id"), c.Param("event_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, ev)
}

// PUT /applets/:id/events/:event_id
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req service.EventRequest
	if !bind(c, &req) {
		return
	}
	ev, err := h.svc.Update(c.Request.Context(), GetUserID(c), c.Param("id"), c.Param("event_id"), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, ev)
}

// DELETE /applets/:id/events/:event_id
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), GetUserID(c), c.Param("id"), c.Param("event_id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// DeleteAll drops every event; default events are recreated.
// DELETE /applets/:id/events
func (h *ScheduleHandler) DeleteAll(c *gin.Context) {
	if err := h.svc.DeleteAll(c.Request.Context(), GetUserID(c), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// POST /applets/:id/events/individual/:respondent_id
func (h *ScheduleHandler) CreateIndividual(c *gin.Context) {
	events, err := h.svc.CreateIndividual(c.Request.Context(), GetUserID(c), c.Param("id"), c.Param("respondent_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, gin.H{"items": events})
}

// DELETE /applets/:id/events/delete_individual/:respondent_id
func (h *ScheduleHandler) DeleteByUser(c *gin.Context) {
	if err := h.svc.DeleteByUser(c.Request.Context(), GetUserID(c), c.Param("id"), c.Param("respondent_id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// UserEvents returns the caller's effective schedule for one applet.
// GET /users/me/respondent/applets/:applet_id/events
func (h *ScheduleHandler) UserEvents(c *gin.Context) {
	events, err := h.svc.UserEvents(c.Request.Context(), GetUserID(c), c.Param("applet_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"applet_id": c.Param("applet_id"), "events": events})
}

// Upcoming returns the caller's events over [from, to] across applets and
// records what was served to the device.
// GET /users/me/events?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *ScheduleHandler) Upcoming(c *gin.Context) {
	today := h.now().Truncate(24 * time.Hour)
	from, to := today, today.AddDate(0, 0, upcomingDays-1)
	if v := c.Query("from"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			BadRequest(c, "from must be YYYY-MM-DD")
			return
		}
		from = d
		to = d.AddDate(0, 0, upcomingDays-1)
	}
	if v := c.Query("to"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			BadRequest(c, "to must be YYYY-MM-DD")
			return
		}
		to = d
	}

	device := service.DeviceInfo{
		DeviceID:   c.GetString("device_id"),
		OSName:     c.GetString("os_name"),
		OSVersion:  c.GetString("os_version"),
		AppVersion: c.GetString("app_version"),
	}
	applets, err := h.svc.UpcomingEvents(c.Request.Context(), GetUserID(c), device, from, to)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": applets})
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHistory streams the schedule history workbook. With ?url=true it
// answers the uploaded file's link instead when object storage is set up.
// GET /applets/:id/events/history/export
func (h *ScheduleHandler) ExportHistory(c *gin.Context) {
	export, err := h.svc.ExportHistory(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	if queryBool(c, "url") && export.URL != "" {
		Success(c, export)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	c.Data(http.StatusOK, xlsxContentType, export.Data)
}
