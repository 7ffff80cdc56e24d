package repository

import (
	"context"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	var u entity.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	var u entity.User
	if err := r.db.WithContext(ctx).First(&u, "email = ?", email).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]entity.User, error) {
	var users []entity.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hashed string) error {
	return r.db.WithContext(ctx).Model(&entity.User{}).Where("id = ?", id).Update("hashed_password", hashed).Error
}

// ========== Workspaces ==========

type WorkspaceRepository struct {
	db *gorm.DB
}

func NewWorkspaceRepository(db *gorm.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

func (r *WorkspaceRepository) FindByOwner(ctx context.Context, ownerID string) (*entity.UserWorkspace, error) {
	var ws entity.UserWorkspace
	if err := r.db.WithContext(ctx).First(&ws, "user_id = ?", ownerID).Error; err != nil {
		return nil, notFound(err)
	}
	return &ws, nil
}

func (r *WorkspaceRepository) Save(ctx context.Context, ws *entity.UserWorkspace) error {
	return r.db.WithContext(ctx).Save(ws).Error
}

// FindByApplet resolves the workspace of the applet's owner.
func (r *WorkspaceRepository) FindByApplet(ctx context.Context, appletID string) (*entity.UserWorkspace, error) {
	var ws entity.UserWorkspace
	err := r.db.WithContext(ctx).
		Joins("JOIN user_applet_accesses uaa ON uaa.owner_id = users_workspaces.user_id").
		Where("uaa.applet_id = ? AND uaa.role = ? AND uaa.deleted_at IS NULL", appletID, entity.RoleOwner).
		First(&ws).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &ws, nil
}

// ========== Jobs ==========

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *JobRepository) FindByID(ctx context.Context, id string) (*entity.Job, error) {
	var job entity.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (r *JobRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&entity.Job{}).Where("id = ?", id).Updates(fields).Error
}

func (r *JobRepository) ListByCreator(ctx context.Context, creatorID string) ([]entity.Job, error) {
	var jobs []entity.Job
	err := r.db.WithContext(ctx).Where("creator_id = ?", creatorID).Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

// ========== Devices ==========

type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Upsert records the latest os and app versions of a user's device.
func (r *DeviceRepository) Upsert(ctx context.Context, d *entity.UserDevice) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"os_name", "os_version", "app_version", "updated_at"}),
	}).Create(d).Error
}

func (r *DeviceRepository) CreateEventHistory(ctx context.Context, rows []entity.UserDeviceEventHistory) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// ListEventHistory returns the served event versions of the given events.
func (r *DeviceRepository) ListEventHistory(ctx context.Context, eventIDs []string) ([]entity.UserDeviceEventHistory, error) {
	var rows []entity.UserDeviceEventHistory
	if len(eventIDs) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).
		Where("event_id IN ?", eventIDs).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
