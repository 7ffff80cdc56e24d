package handler

import (
	"net/http"
	"strconv"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/apperr"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/push"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers groups the HTTP handlers of the applet platform.
type Handlers struct {
	Applet    *AppletHandler
	Schedule  *ScheduleHandler
	Answer    *AnswerHandler
	Subject   *SubjectHandler
	Access    *AccessHandler
	User      *UserHandler
	Workspace *WorkspaceHandler
	SSE       *SSEHandler
}

func NewHandlers(svc *service.Services, hub *push.Hub, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	errLogger = logger
	return &Handlers{
		Applet:    NewAppletHandler(svc.Applet),
		Schedule:  NewScheduleHandler(svc.Schedule),
		Answer:    NewAnswerHandler(svc.Answer),
		Subject:   NewSubjectHandler(svc.Subject),
		Access:    NewAccessHandler(svc.Access),
		User:      NewUserHandler(svc.User),
		Workspace: NewWorkspaceHandler(svc.Workspace),
		SSE:       NewSSEHandler(hub),
	}
}

// Response is the envelope of every JSON reply.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse is the data of a paginated listing.
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewPagination(page, pageSize int, total int64) *Pagination {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return &Pagination{Page: page, PageSize: pageSize, Total: int(total), TotalPages: pages}
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error writes an error envelope; the HTTP status is code / 100.
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

var errLogger = zap.NewNop()

var kindCodes = map[apperr.Kind]int{
	apperr.KindValidation:   40000,
	apperr.KindAccessDenied: 40300,
	apperr.KindNotFound:     40400,
	apperr.KindConflict:     40900,
	apperr.KindDependency:   50200,
	apperr.KindFatal:        50000,
}

// Fail maps a service error onto the envelope. Domain errors carry their
// stable code in data.error_code; anything else is a 500 whose details stay
// in the log.
func Fail(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		errLogger.Error("unhandled error",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err),
		)
		InternalError(c, "internal server error")
		return
	}
	code, known := kindCodes[e.Kind]
	if !known {
		code = 50000
	}
	if code >= 50000 {
		errLogger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("error_code", e.Code),
			zap.Error(err),
		)
	}
	c.JSON(code/100, Response{
		Code:    code,
		Message: e.Message,
		Data:    gin.H{"error_code": e.Code},
	})
}

// bind decodes the JSON body, answering 400 on failure.
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return false
	}
	return true
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

// queryBool reads a boolean query parameter, false when absent or invalid.
func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}

// Register mounts every route under an authenticated group.
func (h *Handlers) Register(api *gin.RouterGroup) {
	applets := api.Group("/applets")
	{
		applets.GET("", h.Applet.List)
		applets.POST("", h.Applet.Create)
		applets.GET("/link/:link", h.Applet.GetByLink)
		applets.GET("/:id", h.Applet.Get)
		applets.PUT("/:id", h.Applet.Update)
		applets.DELETE("/:id", h.Applet.Delete)
		applets.GET("/:id/versions", h.Applet.Versions)
		applets.GET("/:id/versions/:version", h.Applet.GetVersion)
		applets.GET("/:id/versions/:version/changes", h.Applet.Changes)
		applets.PUT("/:id/encryption", h.Applet.SetEncryption)
		applets.POST("/:id/link", h.Applet.CreateLink)
		applets.DELETE("/:id/link", h.Applet.DeleteLink)

		applets.GET("/:id/events", h.Schedule.List)
		applets.POST("/:id/events", h.Schedule.Create)
		applets.DELETE("/:id/events", h.Schedule.DeleteAll)
		applets.GET("/:id/events/history/export", h.Schedule.ExportHistory)
		applets.POST("/:id/events/individual/:respondent_id", h.Schedule.CreateIndividual)
		applets.DELETE("/:id/events/delete_individual/:respondent_id", h.Schedule.DeleteByUser)
		applets.GET("/:id/events/:event_id", h.Schedule.Get)
		applets.PUT("/:id/events/:event_id", h.Schedule.Update)
		applets.DELETE("/:id/events/:event_id", h.Schedule.Delete)

		applets.GET("/:id/roles", h.Access.Roles)
		applets.DELETE("/:id/access/:user_id", h.Access.RemoveRole)
		applets.POST("/:id/transfer_ownership/:user_id", h.Access.TransferOwnership)
		applets.POST("/:id/invitations", h.Access.Invite)
	}

	invitations := api.Group("/invitations")
	{
		invitations.POST("/:key/accept", h.Access.AcceptInvitation)
		invitations.DELETE("/:key/decline", h.Access.DeclineInvitation)
	}

	answers := api.Group("/answers")
	{
		answers.POST("", h.Answer.Submit)
		answers.GET("/applet/:applet_id/review", h.Answer.Review)
		answers.GET("/applet/:applet_id/assessment", h.Answer.Assessments)
		answers.GET("/applet/:applet_id/answers/:answer_id/assessment", h.Answer.Assessment)
		answers.GET("/applet/:applet_id/answers/:answer_id/notes", h.Answer.ListNotes)
		answers.POST("/applet/:applet_id/answers/:answer_id/notes", h.Answer.CreateNote)
		answers.PUT("/applet/:applet_id/answers/:answer_id/notes/:note_id", h.Answer.UpdateNote)
		answers.DELETE("/applet/:applet_id/answers/:answer_id/notes/:note_id", h.Answer.DeleteNote)
	}

	alerts := api.Group("/alerts")
	{
		alerts.GET("", h.Answer.Alerts)
		alerts.POST("/:id/watched", h.Answer.WatchAlert)
	}

	subjects := api.Group("/subjects")
	{
		subjects.POST("", h.Subject.Create)
		subjects.GET("/:id", h.Subject.Get)
		subjects.PUT("/:id", h.Subject.Update)
		subjects.DELETE("/:id", h.Subject.Delete)
		subjects.POST("/:id/relations/:target_id", h.Subject.CreateRelation)
		subjects.DELETE("/:id/relations/:target_id", h.Subject.DeleteRelation)
	}

	users := api.Group("/users/me")
	{
		users.GET("", h.User.Me)
		users.POST("/password", h.User.ChangePassword)
		users.GET("/events", h.Schedule.Upcoming)
		users.GET("/respondent/applets/:applet_id/events", h.Schedule.UserEvents)
		users.GET("/notifications/stream", h.SSE.Stream)
	}

	jobs := api.Group("/jobs")
	{
		jobs.GET("", h.User.Jobs)
		jobs.GET("/:id", h.User.Job)
		jobs.POST("/:id/cancel", h.User.CancelJob)
	}

	workspaces := api.Group("/workspaces/:owner_id")
	{
		workspaces.GET("", h.Workspace.Get)
		workspaces.POST("/arbitrary", h.Workspace.SetArbitrary)
		workspaces.GET("/pins", h.Access.ListPins)
		workspaces.POST("/managers/:user_id/pin", h.Access.PinManager)
		workspaces.POST("/respondents/:user_id/pin", h.Access.PinRespondent)
	}
}
