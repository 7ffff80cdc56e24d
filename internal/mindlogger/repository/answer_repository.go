package repository

import (
	"context"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnswerRepository works on whichever database holds the applet's answers:
// the default one or a workspace's arbitrary server.
type AnswerRepository struct {
	db *gorm.DB
}

func NewAnswerRepository(db *gorm.DB) *AnswerRepository {
	return &AnswerRepository{db: db}
}

func (r *AnswerRepository) DB() *gorm.DB {
	return r.db
}

// AnswerFilter narrows reviewer listings.
type AnswerFilter struct {
	AppletID           string
	TargetSubjectIDs   []string // nil: any subject
	ActivityHistoryIDs []string
	RespondentID       string
	Page               int
	PageSize           int
}

// CreateIfAbsent inserts the answer unless (submit_id, activity_history_id)
// already exists. It reports whether a row was written.
func (r *AnswerRepository) CreateIfAbsent(ctx context.Context, a *entity.Answer) (bool, error) {
	items := a.Items
	a.Items = nil
	defer func() { a.Items = items }()

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submit_id"}, {Name: "activity_history_id"}},
		DoNothing: true,
	}).Create(a)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if len(items) > 0 {
		if err := r.db.WithContext(ctx).Create(&items).Error; err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *AnswerRepository) FindByID(ctx context.Context, id string) (*entity.Answer, error) {
	var a entity.Answer
	err := r.db.WithContext(ctx).
		Preload("Items", "is_assessment = ?", false).
		First(&a, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *AnswerRepository) FindBySubmit(ctx context.Context, submitID, activityHistoryID string) (*entity.Answer, error) {
	var a entity.Answer
	err := r.db.WithContext(ctx).
		Preload("Items", "is_assessment = ?", false).
		First(&a, "submit_id = ? AND activity_history_id = ?", submitID, activityHistoryID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// List returns answers with their respondent items, newest first, and the
// total count before paging.
func (r *AnswerRepository) List(ctx context.Context, f AnswerFilter) ([]entity.Answer, int64, error) {
	q := r.db.WithContext(ctx).Model(&entity.Answer{}).Where("applet_id = ?", f.AppletID)
	if f.TargetSubjectIDs != nil {
		if len(f.TargetSubjectIDs) == 0 {
			return []entity.Answer{}, 0, nil
		}
		q = q.Where("target_subject_id IN ?", f.TargetSubjectIDs)
	}
	if len(f.ActivityHistoryIDs) > 0 {
		q = q.Where("activity_history_id IN ?", f.ActivityHistoryIDs)
	}
	if f.RespondentID != "" {
		q = q.Where("respondent_id = ?", f.RespondentID)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var answers []entity.Answer
	q = q.Preload("Items", "is_assessment = ?", false).Order("created_at DESC")
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		q = q.Offset((page - 1) * f.PageSize).Limit(f.PageSize)
	}
	err := q.Find(&answers).Error
	return answers, total, err
}

// ListAssessments returns reviewer items of the applet's answers.
func (r *AnswerRepository) ListAssessments(ctx context.Context, answerIDs []string, reviewerID string) ([]entity.AnswerItem, error) {
	var items []entity.AnswerItem
	if len(answerIDs) == 0 {
		return items, nil
	}
	q := r.db.WithContext(ctx).Where("answer_id IN ? AND is_assessment = ?", answerIDs, true)
	if reviewerID != "" {
		q = q.Where("respondent_id = ?", reviewerID)
	}
	err := q.Order("created_at ASC").Find(&items).Error
	return items, err
}

// ReplaceAssessment stores the reviewer's assessment of an answer,
// replacing an earlier one by the same reviewer.
func (r *AnswerRepository) ReplaceAssessment(ctx context.Context, item *entity.AnswerItem) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("answer_id = ? AND respondent_id = ? AND is_assessment = ?", item.AnswerID, item.RespondentID, true).
		Delete(&entity.AnswerItem{}).Error; err != nil {
		return err
	}
	return db.Create(item).Error
}

// ListItemsByRespondent returns every item the user authored in the applet.
func (r *AnswerRepository) ListItemsByRespondent(ctx context.Context, appletID, respondentID string) ([]entity.AnswerItem, error) {
	var items []entity.AnswerItem
	err := r.db.WithContext(ctx).
		Joins("JOIN answers ON answers.id = answers_items.answer_id").
		Where("answers.applet_id = ? AND answers_items.respondent_id = ?", appletID, respondentID).
		Order("answers_items.created_at ASC").
		Find(&items).Error
	return items, err
}

// AppletIDsByRespondent lists applets the user has answered in.
func (r *AnswerRepository) AppletIDsByRespondent(ctx context.Context, respondentID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entity.Answer{}).
		Where("respondent_id = ?", respondentID).
		Distinct().
		Pluck("applet_id", &ids).Error
	return ids, err
}

// UpdateItemCipher rewrites the encrypted fields of one item after its
// respondent's key changed.
func (r *AnswerRepository) UpdateItemCipher(ctx context.Context, item *entity.AnswerItem) error {
	return r.db.WithContext(ctx).Model(&entity.AnswerItem{}).Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"answer":          item.Answer,
			"events":          item.Events,
			"identifier":      item.Identifier,
			"user_public_key": item.UserPublicKey,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// DeleteBySubject removes every answer about or by the subject in the
// applet, with their items. It returns the number of answers removed.
func (r *AnswerRepository) DeleteBySubject(ctx context.Context, appletID, subjectID string) (int64, error) {
	db := r.db.WithContext(ctx)
	ids := db.Model(&entity.Answer{}).Select("id").
		Where("applet_id = ? AND (target_subject_id = ? OR source_subject_id = ?)", appletID, subjectID, subjectID)
	if err := db.Where("answer_id IN (?)", ids).Delete(&entity.AnswerItem{}).Error; err != nil {
		return 0, err
	}
	res := db.Where("applet_id = ? AND (target_subject_id = ? OR source_subject_id = ?)", appletID, subjectID, subjectID).
		Delete(&entity.Answer{})
	return res.RowsAffected, res.Error
}

// DeleteOlderThan removes the applet's answers created before cutoff.
func (r *AnswerRepository) DeleteOlderThan(ctx context.Context, appletID string, cutoff time.Time) (int64, error) {
	db := r.db.WithContext(ctx)
	ids := db.Model(&entity.Answer{}).Select("id").Where("applet_id = ? AND created_at < ?", appletID, cutoff)
	if err := db.Where("answer_id IN (?)", ids).Delete(&entity.AnswerItem{}).Error; err != nil {
		return 0, err
	}
	res := db.Where("applet_id = ? AND created_at < ?", appletID, cutoff).Delete(&entity.Answer{})
	return res.RowsAffected, res.Error
}

// ========== Notes ==========

type NoteRepository struct {
	db *gorm.DB
}

func NewNoteRepository(db *gorm.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

func (r *NoteRepository) Create(ctx context.Context, n *entity.AnswerNote) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *NoteRepository) Save(ctx context.Context, n *entity.AnswerNote) error {
	return r.db.WithContext(ctx).Save(n).Error
}

func (r *NoteRepository) FindByID(ctx context.Context, id string) (*entity.AnswerNote, error) {
	var n entity.AnswerNote
	if err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (r *NoteRepository) ListByAnswer(ctx context.Context, answerID, activityID string) ([]entity.AnswerNote, error) {
	var notes []entity.AnswerNote
	err := r.db.WithContext(ctx).
		Where("answer_id = ? AND activity_id = ?", answerID, activityID).
		Order("created_at DESC").
		Find(&notes).Error
	return notes, err
}

func (r *NoteRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&entity.AnswerNote{}, "id = ?", id).Error
}

// ========== Alerts ==========

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) CreateBatch(ctx context.Context, alerts []entity.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&alerts).Error
}

func (r *AlertRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]entity.Alert, int64, error) {
	q := r.db.WithContext(ctx).Model(&entity.Alert{}).Where("user_id = ?", userID)
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var alerts []entity.Alert
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	err := q.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&alerts).Error
	return alerts, total, err
}

// MarkWatched flags the user's alert as seen. It reports whether the alert
// exists for that user.
func (r *AlertRepository) MarkWatched(ctx context.Context, id, userID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.Alert{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_watched", true)
	return res.RowsAffected > 0, res.Error
}
