// Package service implements the applet platform: the applet version store,
// the schedule engine, the answer pipeline, the workspace router and the
// access resolver.
package service

import (
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/config"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/repository"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/crypto"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/database"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/mailer"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/push"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/queue"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the collaborators shared by every service. Optional ones (Redis,
// Notifier, Mailer, Queue, Storage) may be nil.
type Deps struct {
	Repos    *repository.Repositories
	Router   *database.Router
	Redis    *redis.Client
	Box      *crypto.SecretBox
	Notifier push.Notifier
	Mailer   *mailer.Mailer
	Queue    *queue.Queue
	Storage  *storage.Storage
	Config   *config.Config
	Logger   *zap.Logger
	Now      func() time.Time
}

// Services groups the services of the applet platform.
type Services struct {
	Access    *AccessService
	Workspace *WorkspaceService
	Applet    *AppletService
	Schedule  *ScheduleService
	Answer    *AnswerService
	Subject   *SubjectService
	User      *UserService
	Reencrypt *ReencryptService
	Retention *RetentionService
}

func NewServices(d Deps) *Services {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Config == nil {
		d.Config = &config.Config{}
	}

	access := NewAccessService(d)
	workspace := NewWorkspaceService(d, access)
	schedule := NewScheduleService(d, access)
	access.schedule = schedule
	access.workspace = workspace

	return &Services{
		Access:    access,
		Workspace: workspace,
		Applet:    NewAppletService(d, access, schedule),
		Schedule:  schedule,
		Answer:    NewAnswerService(d, access, workspace),
		Subject:   NewSubjectService(d, access, workspace),
		User:      NewUserService(d),
		Reencrypt: NewReencryptService(d, workspace),
		Retention: NewRetentionService(d, workspace),
	}
}
