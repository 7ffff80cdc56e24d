package repository

import (
	"context"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"gorm.io/gorm"
)

type AccessRepository struct {
	db *gorm.DB
}

func NewAccessRepository(db *gorm.DB) *AccessRepository {
	return &AccessRepository{db: db}
}

func (r *AccessRepository) Create(ctx context.Context, a *entity.UserAppletAccess) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *AccessRepository) Save(ctx context.Context, a *entity.UserAppletAccess) error {
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *AccessRepository) Find(ctx context.Context, userID, appletID, role string) (*entity.UserAppletAccess, error) {
	var a entity.UserAppletAccess
	err := r.db.WithContext(ctx).First(&a, "user_id = ? AND applet_id = ? AND role = ?", userID, appletID, role).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *AccessRepository) ListByUserAndApplet(ctx context.Context, userID, appletID string) ([]entity.UserAppletAccess, error) {
	var rows []entity.UserAppletAccess
	err := r.db.WithContext(ctx).Where("user_id = ? AND applet_id = ?", userID, appletID).Find(&rows).Error
	return rows, err
}

func (r *AccessRepository) ListByApplet(ctx context.Context, appletID string, roles ...string) ([]entity.UserAppletAccess, error) {
	var rows []entity.UserAppletAccess
	q := r.db.WithContext(ctx).Where("applet_id = ?", appletID)
	if len(roles) > 0 {
		q = q.Where("role IN ?", roles)
	}
	err := q.Order("created_at ASC").Find(&rows).Error
	return rows, err
}

// AppletIDsByUser returns the applets where the user holds one of roles.
func (r *AccessRepository) AppletIDsByUser(ctx context.Context, userID string, roles ...string) ([]string, error) {
	var ids []string
	q := r.db.WithContext(ctx).Model(&entity.UserAppletAccess{}).Where("user_id = ?", userID)
	if len(roles) > 0 {
		q = q.Where("role IN ?", roles)
	}
	err := q.Distinct().Pluck("applet_id", &ids).Error
	return ids, err
}

func (r *AccessRepository) Delete(ctx context.Context, userID, appletID string, roles ...string) (int64, error) {
	q := r.db.WithContext(ctx).Where("user_id = ? AND applet_id = ?", userID, appletID)
	if len(roles) > 0 {
		q = q.Where("role IN ?", roles)
	}
	res := q.Delete(&entity.UserAppletAccess{})
	return res.RowsAffected, res.Error
}

// SetOwner points every access row of the applet at a new owner.
func (r *AccessRepository) SetOwner(ctx context.Context, appletID, ownerID string) error {
	return r.db.WithContext(ctx).Model(&entity.UserAppletAccess{}).
		Where("applet_id = ?", appletID).
		Update("owner_id", ownerID).Error
}

func (r *AccessRepository) DeleteByApplet(ctx context.Context, appletID string) error {
	return r.db.WithContext(ctx).Where("applet_id = ?", appletID).Delete(&entity.UserAppletAccess{}).Error
}

// ========== Invitations ==========

func (r *AccessRepository) CreateInvitation(ctx context.Context, inv *entity.Invitation) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *AccessRepository) SaveInvitation(ctx context.Context, inv *entity.Invitation) error {
	return r.db.WithContext(ctx).Save(inv).Error
}

func (r *AccessRepository) FindInvitation(ctx context.Context, key string) (*entity.Invitation, error) {
	var inv entity.Invitation
	if err := r.db.WithContext(ctx).First(&inv, "key = ?", key).Error; err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

func (r *AccessRepository) PendingInvitationExists(ctx context.Context, appletID, email, role string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.Invitation{}).
		Where("applet_id = ? AND email = ? AND role = ? AND status = ?", appletID, email, role, entity.InvitationPending).
		Count(&n).Error
	return n > 0, err
}

// ========== Pins ==========

func (r *AccessRepository) FindPin(ctx context.Context, userID, ownerID, role, pinnedID string) (*entity.UserPin, error) {
	var pin entity.UserPin
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND owner_id = ? AND role = ?", userID, ownerID, role).
		Where("(pinned_user_id = ? OR pinned_subject_id = ?)", pinnedID, pinnedID).
		First(&pin).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &pin, nil
}

func (r *AccessRepository) CreatePin(ctx context.Context, pin *entity.UserPin) error {
	return r.db.WithContext(ctx).Create(pin).Error
}

func (r *AccessRepository) DeletePin(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&entity.UserPin{}, "id = ?", id).Error
}

func (r *AccessRepository) ListPins(ctx context.Context, userID, ownerID string) ([]entity.UserPin, error) {
	var pins []entity.UserPin
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND owner_id = ?", userID, ownerID).
		Order("created_at ASC").
		Find(&pins).Error
	return pins, err
}
