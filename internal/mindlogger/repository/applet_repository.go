package repository

import (
	"context"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"gorm.io/gorm"
)

// AppletRepository reads and writes applets, their children and the
// *_histories snapshots.
type AppletRepository struct {
	db *gorm.DB
}

func NewAppletRepository(db *gorm.DB) *AppletRepository {
	return &AppletRepository{db: db}
}

func (r *AppletRepository) DB() *gorm.DB {
	return r.db
}

// ========== Applet ==========

func (r *AppletRepository) Create(ctx context.Context, applet *entity.Applet) error {
	return r.db.WithContext(ctx).Create(applet).Error
}

func (r *AppletRepository) Save(ctx context.Context, applet *entity.Applet) error {
	return r.db.WithContext(ctx).Save(applet).Error
}

func (r *AppletRepository) FindByID(ctx context.Context, id string) (*entity.Applet, error) {
	var applet entity.Applet
	if err := r.db.WithContext(ctx).First(&applet, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &applet, nil
}

// FindByIDUnscoped also returns soft-deleted applets.
func (r *AppletRepository) FindByIDUnscoped(ctx context.Context, id string) (*entity.Applet, error) {
	var applet entity.Applet
	if err := r.db.WithContext(ctx).Unscoped().First(&applet, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &applet, nil
}

func (r *AppletRepository) FindByLink(ctx context.Context, link string) (*entity.Applet, error) {
	var applet entity.Applet
	if err := r.db.WithContext(ctx).First(&applet, "link = ?", link).Error; err != nil {
		return nil, notFound(err)
	}
	return &applet, nil
}

func (r *AppletRepository) FindByIDs(ctx context.Context, ids []string) ([]entity.Applet, error) {
	var applets []entity.Applet
	if len(ids) == 0 {
		return applets, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&applets).Error
	return applets, err
}

// ListWithRetention returns live applets that have a retention policy.
func (r *AppletRepository) ListWithRetention(ctx context.Context) ([]entity.Applet, error) {
	var applets []entity.Applet
	err := r.db.WithContext(ctx).
		Where("retention_period IS NOT NULL AND retention_type IS NOT NULL").
		Find(&applets).Error
	return applets, err
}

func (r *AppletRepository) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&entity.Applet{}, "id = ?", id).Error
}

// ========== Activities / Flows (current) ==========

func (r *AppletRepository) ListActivities(ctx context.Context, appletID string) ([]entity.Activity, error) {
	var activities []entity.Activity
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order(byOrder()) }).
		Where("applet_id = ?", appletID).
		Order(byOrder()).
		Find(&activities).Error
	return activities, err
}

func (r *AppletRepository) FindActivity(ctx context.Context, id string) (*entity.Activity, error) {
	var activity entity.Activity
	if err := r.db.WithContext(ctx).First(&activity, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &activity, nil
}

func (r *AppletRepository) ListFlows(ctx context.Context, appletID string) ([]entity.Flow, error) {
	var flows []entity.Flow
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order(byOrder()) }).
		Where("applet_id = ?", appletID).
		Order(byOrder()).
		Find(&flows).Error
	return flows, err
}

func (r *AppletRepository) FindFlow(ctx context.Context, id string) (*entity.Flow, error) {
	var flow entity.Flow
	if err := r.db.WithContext(ctx).First(&flow, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &flow, nil
}

// ReplaceChildren deletes the applet's current activities, items, flows and
// flow items and inserts the given ones. IDs are kept by the caller, so
// surviving entities keep their identity.
func (r *AppletRepository) ReplaceChildren(ctx context.Context, appletID string, activities []entity.Activity, flows []entity.Flow) error {
	db := r.db.WithContext(ctx)

	activityIDs := db.Model(&entity.Activity{}).Select("id").Where("applet_id = ?", appletID)
	if err := db.Where("activity_id IN (?)", activityIDs).Delete(&entity.ActivityItem{}).Error; err != nil {
		return err
	}
	flowIDs := db.Model(&entity.Flow{}).Select("id").Where("applet_id = ?", appletID)
	if err := db.Where("activity_flow_id IN (?)", flowIDs).Delete(&entity.FlowItem{}).Error; err != nil {
		return err
	}
	if err := db.Where("applet_id = ?", appletID).Delete(&entity.Flow{}).Error; err != nil {
		return err
	}
	if err := db.Where("applet_id = ?", appletID).Delete(&entity.Activity{}).Error; err != nil {
		return err
	}

	for i := range activities {
		if err := db.Create(&activities[i]).Error; err != nil {
			return err
		}
	}
	for i := range flows {
		if err := db.Create(&flows[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// ========== History ==========

func (r *AppletRepository) CreateHistory(ctx context.Context, h *entity.AppletHistory, activities []entity.ActivityHistory, flows []entity.FlowHistory) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(h).Error; err != nil {
		return err
	}
	for i := range activities {
		if err := db.Create(&activities[i]).Error; err != nil {
			return err
		}
	}
	for i := range flows {
		if err := db.Create(&flows[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *AppletRepository) FindHistory(ctx context.Context, idVersion string) (*entity.AppletHistory, error) {
	var h entity.AppletHistory
	if err := r.db.WithContext(ctx).First(&h, "id_version = ?", idVersion).Error; err != nil {
		return nil, notFound(err)
	}
	return &h, nil
}

// HistoryExists reports which of the given applet history ids exist.
func (r *AppletRepository) HistoryExists(ctx context.Context, idVersions []string) (map[string]bool, error) {
	found := make(map[string]bool, len(idVersions))
	if len(idVersions) == 0 {
		return found, nil
	}
	var ids []string
	err := r.db.WithContext(ctx).Model(&entity.AppletHistory{}).
		Where("id_version IN ?", idVersions).
		Pluck("id_version", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		found[id] = true
	}
	return found, nil
}

// ListHistories returns every snapshot of an applet, oldest first.
func (r *AppletRepository) ListHistories(ctx context.Context, appletID string) ([]entity.AppletHistory, error) {
	var hs []entity.AppletHistory
	err := r.db.WithContext(ctx).
		Where("id = ?", appletID).
		Order("created_at ASC").
		Find(&hs).Error
	return hs, err
}

func (r *AppletRepository) ListActivityHistories(ctx context.Context, appletHistoryID string) ([]entity.ActivityHistory, error) {
	var hs []entity.ActivityHistory
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order(byOrder()) }).
		Where("applet_id = ?", appletHistoryID).
		Order(byOrder()).
		Find(&hs).Error
	return hs, err
}

func (r *AppletRepository) FindActivityHistory(ctx context.Context, idVersion string) (*entity.ActivityHistory, error) {
	var h entity.ActivityHistory
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order(byOrder()) }).
		First(&h, "id_version = ?", idVersion).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &h, nil
}

// FindLatestActivityHistory returns the newest snapshot of an activity.
func (r *AppletRepository) FindLatestActivityHistory(ctx context.Context, activityID string) (*entity.ActivityHistory, error) {
	var h entity.ActivityHistory
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order(byOrder()) }).
		Where("id = ?", activityID).
		Order("created_at DESC").
		First(&h).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &h, nil
}

// CreateActivityHistory inserts a copied activity snapshot with its items.
func (r *AppletRepository) CreateActivityHistory(ctx context.Context, h *entity.ActivityHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *AppletRepository) ListFlowHistories(ctx context.Context, appletHistoryID string) ([]entity.FlowHistory, error) {
	var hs []entity.FlowHistory
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order(byOrder()) }).
		Where("applet_id = ?", appletHistoryID).
		Order(byOrder()).
		Find(&hs).Error
	return hs, err
}

func (r *AppletRepository) FindFlowHistory(ctx context.Context, idVersion string) (*entity.FlowHistory, error) {
	var h entity.FlowHistory
	if err := r.db.WithContext(ctx).First(&h, "id_version = ?", idVersion).Error; err != nil {
		return nil, notFound(err)
	}
	return &h, nil
}

// FindItemHistories loads item snapshots by id_version.
func (r *AppletRepository) FindItemHistories(ctx context.Context, idVersions []string) ([]entity.ActivityItemHistory, error) {
	var items []entity.ActivityItemHistory
	if len(idVersions) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).Where("id_version IN ?", idVersions).Order(byOrder()).Find(&items).Error
	return items, err
}
