package repository

import (
	"context"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"gorm.io/gorm"
)

type SubjectRepository struct {
	db *gorm.DB
}

func NewSubjectRepository(db *gorm.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) Create(ctx context.Context, s *entity.Subject) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *SubjectRepository) Save(ctx context.Context, s *entity.Subject) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*entity.Subject, error) {
	var s entity.Subject
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *SubjectRepository) FindByUserAndApplet(ctx context.Context, userID, appletID string) (*entity.Subject, error) {
	var s entity.Subject
	if err := r.db.WithContext(ctx).First(&s, "user_id = ? AND applet_id = ?", userID, appletID).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// SecretIDTaken reports whether another live subject of the applet uses
// secretID. excludeID skips the subject being edited.
func (r *SubjectRepository) SecretIDTaken(ctx context.Context, appletID, secretID, excludeID string) (bool, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&entity.Subject{}).
		Where("applet_id = ? AND secret_user_id = ?", appletID, secretID)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Count(&n).Error
	return n > 0, err
}

func (r *SubjectRepository) ListByApplet(ctx context.Context, appletID string) ([]entity.Subject, error) {
	var subjects []entity.Subject
	err := r.db.WithContext(ctx).Where("applet_id = ?", appletID).Order("created_at ASC").Find(&subjects).Error
	return subjects, err
}

func (r *SubjectRepository) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&entity.Subject{}, "id = ?", id).Error
}

// ========== Relations ==========

// UpsertRelation replaces the relation between two subjects.
func (r *SubjectRepository) UpsertRelation(ctx context.Context, rel *entity.SubjectRelation) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("source_subject_id = ? AND target_subject_id = ?", rel.SourceSubjectID, rel.TargetSubjectID).
		Delete(&entity.SubjectRelation{}).Error; err != nil {
		return err
	}
	return db.Create(rel).Error
}

func (r *SubjectRepository) FindRelation(ctx context.Context, sourceID, targetID string) (*entity.SubjectRelation, error) {
	var rel entity.SubjectRelation
	err := r.db.WithContext(ctx).First(&rel, "source_subject_id = ? AND target_subject_id = ?", sourceID, targetID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rel, nil
}

func (r *SubjectRepository) DeleteRelation(ctx context.Context, sourceID, targetID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("source_subject_id = ? AND target_subject_id = ?", sourceID, targetID).
		Delete(&entity.SubjectRelation{})
	return res.RowsAffected, res.Error
}

func (r *SubjectRepository) DeleteRelationsOf(ctx context.Context, subjectID string) error {
	return r.db.WithContext(ctx).
		Where("source_subject_id = ? OR target_subject_id = ?", subjectID, subjectID).
		Delete(&entity.SubjectRelation{}).Error
}
