package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/apperr"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/repository"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/crypto"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/database"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/mailer"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/push"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ItemAnswerRequest is the encrypted payload of one submission. Times are
// epoch milliseconds.
type ItemAnswerRequest struct {
	Answer           string   `json:"answer" binding:"required"`
	Events           string   `json:"events"`
	ItemIDs          []string `json:"item_ids" binding:"required,min=1"`
	Identifier       *string  `json:"identifier"`
	UserPublicKey    string   `json:"user_public_key" binding:"required"`
	StartTime        int64    `json:"start_time" binding:"required"`
	EndTime          int64    `json:"end_time" binding:"required"`
	ScheduledTime    *int64   `json:"scheduled_time"`
	ScheduledEventID *string  `json:"scheduled_event_id"`
	LocalEndDate     *string  `json:"local_end_date"`
	LocalEndTime     *string  `json:"local_end_time"`
	TZOffset         *int     `json:"tz_offset"`
}

type AlertRequest struct {
	ActivityItemID string `json:"activity_item_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
}

// ReviewingMeta marks a submission as the reviewer's assessment of an
// existing answer.
type ReviewingMeta struct {
	ResponseID string `json:"responseId"`
}

type AnswerMeta struct {
	Reviewing *ReviewingMeta `json:"reviewing,omitempty"`
}

// AnswerRequest is an encrypted submission of one activity.
type AnswerRequest struct {
	SubmitID        string            `json:"submit_id" binding:"required"`
	AppletID        string            `json:"applet_id" binding:"required"`
	Version         string            `json:"version" binding:"required"`
	ActivityID      string            `json:"activity_id" binding:"required"`
	FlowID          *string           `json:"flow_id"`
	IsFlowCompleted bool              `json:"is_flow_completed"`
	Answer          ItemAnswerRequest `json:"answer" binding:"required"`
	Client          json.RawMessage   `json:"client"`
	TargetSubjectID *string           `json:"target_subject_id"`
	SourceSubjectID *string           `json:"source_subject_id"`
	Alerts          []AlertRequest    `json:"alerts"`
	CreatedAt       *int64            `json:"created_at"`
	Meta            *AnswerMeta       `json:"meta"`
}

// SubmitResult is the stored answer. Duplicate is set when the submit id had
// already been stored and nothing was written.
type SubmitResult struct {
	Answer    *entity.Answer `json:"answer"`
	Duplicate bool           `json:"duplicate"`
}

// AnswerService ingests encrypted submissions into the applet's answer
// database and serves reviewer views over them.
type AnswerService struct {
	repos     *repository.Repositories
	access    *AccessService
	workspace *WorkspaceService
	box       *crypto.SecretBox
	notifier  push.Notifier
	mailer    *mailer.Mailer
	report    *reportClient
	logger    *zap.Logger
	now       func() time.Time
}

func NewAnswerService(d Deps, access *AccessService, workspace *WorkspaceService) *AnswerService {
	return &AnswerService{
		repos:     d.Repos,
		access:    access,
		workspace: workspace,
		box:       d.Box,
		notifier:  d.Notifier,
		mailer:    d.Mailer,
		report:    newReportClient(d.Config.Report.Timeout),
		logger:    d.Logger,
		now:       d.Now,
	}
}

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// answerRepo returns the answer repository of the applet's database.
func (s *AnswerService) answerRepo(ctx context.Context, appletID string) (*repository.AnswerRepository, error) {
	db, err := s.workspace.AnswerDB(ctx, appletID)
	if err != nil {
		return nil, err
	}
	return repository.NewAnswerRepository(db), nil
}

func buildItem(answerID, respondentID string, req ItemAnswerRequest) (entity.AnswerItem, error) {
	item := entity.AnswerItem{
		ID:               uuid.New().String(),
		AnswerID:         answerID,
		RespondentID:     respondentID,
		Answer:           req.Answer,
		Events:           req.Events,
		UserPublicKey:    req.UserPublicKey,
		Identifier:       req.Identifier,
		ItemIDs:          datatypes.JSONSlice[string](req.ItemIDs),
		StartTime:        msTime(req.StartTime),
		EndTime:          msTime(req.EndTime),
		ScheduledEventID: req.ScheduledEventID,
		TZOffset:         req.TZOffset,
	}
	if req.ScheduledTime != nil {
		t := msTime(*req.ScheduledTime)
		item.ScheduledTime = &t
	}
	d, err := parseDate(req.LocalEndDate)
	if err != nil {
		return item, apperr.Validation("INVALID_LOCAL_END_DATE", "%v", err)
	}
	item.LocalEndDate = d
	if req.LocalEndTime != nil && *req.LocalEndTime != "" {
		t, err := parseClock(*req.LocalEndTime)
		if err != nil {
			return item, apperr.Validation("INVALID_LOCAL_END_TIME", "%v", err)
		}
		item.LocalEndTime = &t
	}
	return item, nil
}

// Submit stores an encrypted answer. Retries of the same submit id are
// reported as duplicates and have no further effect.
func (s *AnswerService) Submit(ctx context.Context, userID string, req *AnswerRequest) (*SubmitResult, error) {
	applet, err := s.repos.Applet.FindByID(ctx, req.AppletID)
	if err != nil {
		return nil, appletLookup(req.AppletID, err)
	}
	historyID := entity.IDVersion(applet.ID, req.Version)
	if _, err := s.repos.Applet.FindHistory(ctx, historyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.AppletVersionNotFound(applet.ID, req.Version)
		}
		return nil, err
	}
	if req.Meta != nil && req.Meta.Reviewing != nil && req.Meta.Reviewing.ResponseID != "" {
		return s.submitAssessment(ctx, userID, applet, req)
	}

	acc, err := s.access.Require(ctx, userID, applet.ID, entity.RoleRespondent)
	if err != nil {
		return nil, err
	}
	activityHistoryID := entity.IDVersion(req.ActivityID, req.Version)
	ah, err := s.repos.Applet.FindActivityHistory(ctx, activityHistoryID)
	if err != nil || ah.AppletID != historyID {
		if err == nil || errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ActivityNotFound(req.ActivityID)
		}
		return nil, err
	}
	var flowHistoryID *string
	if req.FlowID != nil && *req.FlowID != "" {
		fhID := entity.IDVersion(*req.FlowID, req.Version)
		fh, err := s.repos.Applet.FindFlowHistory(ctx, fhID)
		if err != nil || fh.AppletID != historyID {
			if err == nil || errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.FlowNotFound(*req.FlowID)
			}
			return nil, err
		}
		if req.IsFlowCompleted {
			flowHistoryID = &fhID
		}
	}

	source, target, err := s.resolveSubjects(ctx, userID, applet.ID, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	createdAt := now
	if req.CreatedAt != nil {
		createdAt = msTime(*req.CreatedAt)
	}
	answer := &entity.Answer{
		ID:                uuid.New().String(),
		SubmitID:          req.SubmitID,
		AppletID:          applet.ID,
		Version:           req.Version,
		AppletHistoryID:   historyID,
		ActivityHistoryID: activityHistoryID,
		FlowHistoryID:     flowHistoryID,
		RespondentID:      userID,
		TargetSubjectID:   &target,
		SourceSubjectID:   &source,
		IsFlowCompleted:   req.IsFlowCompleted,
		Client:            rawJSON(req.Client),
		CreatedAt:         createdAt,
	}
	item, err := buildItem(answer.ID, userID, req.Answer)
	if err != nil {
		return nil, err
	}
	answer.Items = []entity.AnswerItem{item}

	var recipients []string
	if len(req.Alerts) > 0 {
		if recipients, err = s.alertRecipients(ctx, applet.ID, target); err != nil {
			return nil, err
		}
	}
	alerts := make([]entity.Alert, 0, len(req.Alerts)*len(recipients))
	for _, a := range req.Alerts {
		for _, to := range recipients {
			alerts = append(alerts, entity.Alert{
				ID:             uuid.New().String(),
				UserID:         to,
				RespondentID:   userID,
				SubjectID:      &target,
				AppletID:       applet.ID,
				ActivityID:     req.ActivityID,
				ActivityItemID: a.ActivityItemID,
				AnswerID:       answer.ID,
				AlertMessage:   a.Message,
				Version:        req.Version,
			})
		}
	}

	arbDB, err := s.workspace.AnswerDB(ctx, applet.ID)
	if err != nil {
		return nil, err
	}
	created := false
	err = database.AtomicPair(ctx, s.repos.DB(), arbDB, func(reg, arb *gorm.DB) error {
		ok, err := repository.NewAnswerRepository(arb).CreateIfAbsent(ctx, answer)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		created = true
		return s.repos.WithTx(reg).Alert.CreateBatch(ctx, alerts)
	})
	if err != nil {
		return nil, fmt.Errorf("store answer: %w", err)
	}

	if !created {
		existing, err := repository.NewAnswerRepository(arbDB).FindBySubmit(ctx, req.SubmitID, activityHistoryID)
		if err != nil {
			return nil, err
		}
		if existing.RespondentID != userID {
			return nil, apperr.DuplicateSubmission(req.SubmitID)
		}
		return &SubmitResult{Answer: existing, Duplicate: true}, nil
	}

	if len(alerts) > 0 {
		s.deliverAlerts(ctx, applet, recipients, req.Alerts)
	}
	if applet.ReportServerIP != "" && (req.FlowID == nil || req.IsFlowCompleted) {
		s.sendReport(ctx, applet, answer, acc, source)
	}
	return &SubmitResult{Answer: answer}, nil
}

// resolveSubjects returns the source and target subjects of a submission.
// Both default to the respondent's own subject. Answering about another
// subject needs a live relation unless the respondent administers the applet.
func (s *AnswerService) resolveSubjects(ctx context.Context, userID, appletID string, req *AnswerRequest) (string, string, error) {
	own, err := s.repos.Subject.FindByUserAndApplet(ctx, userID, appletID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", "", apperr.SubjectNotFound(userID)
		}
		return "", "", err
	}
	source, target := own.ID, own.ID
	if req.SourceSubjectID != nil && *req.SourceSubjectID != "" {
		source = *req.SourceSubjectID
	}
	if req.TargetSubjectID != nil && *req.TargetSubjectID != "" {
		target = *req.TargetSubjectID
	}
	if source == own.ID && target == own.ID {
		return source, target, nil
	}

	for _, id := range []string{source, target} {
		subj, err := s.repos.Subject.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return "", "", apperr.SubjectNotFound(id)
			}
			return "", "", err
		}
		if subj.AppletID != appletID {
			return "", "", apperr.SubjectNotFound(id)
		}
	}
	if _, err := s.access.Require(ctx, userID, appletID, ScheduleRoles...); err == nil {
		return source, target, nil
	}
	if source == target {
		return source, target, nil
	}
	rel, err := s.repos.Subject.FindRelation(ctx, source, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", "", apperr.AccessDenied("SUBJECT_RELATION_REQUIRED", "no relation from subject %s to subject %s", source, target)
		}
		return "", "", err
	}
	if rel.Expired(s.now()) {
		return "", "", apperr.AccessDenied("SUBJECT_RELATION_EXPIRED", "relation from subject %s to subject %s has expired", source, target)
	}
	return source, target, nil
}

// alertRecipients are the applet's owners and managers plus the reviewers
// scoped to the target subject.
func (s *AnswerService) alertRecipients(ctx context.Context, appletID, subjectID string) ([]string, error) {
	rows, err := s.repos.Access.ListByApplet(ctx, appletID, entity.RoleOwner, entity.RoleManager, entity.RoleReviewer)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		if r.Role == entity.RoleReviewer && !containsString(r.Meta.Data().Subjects, subjectID) {
			continue
		}
		if !seen[r.UserID] {
			seen[r.UserID] = true
			out = append(out, r.UserID)
		}
	}
	return out, nil
}

func (s *AnswerService) deliverAlerts(ctx context.Context, applet *entity.Applet, recipients []string, alerts []AlertRequest) {
	if s.notifier != nil {
		for _, a := range alerts {
			err := s.notifier.Notify(ctx, push.Notification{
				AppletID: applet.ID,
				Title:    applet.DisplayName,
				Body:     a.Message,
				Kind:     push.KindAlert,
				UserIDs:  recipients,
			})
			if err != nil {
				s.logger.Warn("alert push failed", zap.String("applet_id", applet.ID), zap.Error(err))
			}
		}
	}
	if s.mailer == nil || !s.mailer.Enabled() {
		return
	}
	users, err := s.repos.User.FindByIDs(ctx, recipients)
	if err != nil {
		s.logger.Warn("load alert recipients", zap.String("applet_id", applet.ID), zap.Error(err))
		return
	}
	for _, u := range users {
		for _, a := range alerts {
			if err := s.mailer.SendAlert(ctx, u.Email, applet.DisplayName, a.Message); err != nil {
				s.logger.Warn("alert email failed",
					zap.String("applet_id", applet.ID),
					zap.String("user_id", u.ID),
					zap.Error(err),
				)
			}
		}
	}
}

// ========== Assessments ==========

// submitAssessment stores the reviewer's assessment of an existing answer,
// replacing an earlier one by the same reviewer.
func (s *AnswerService) submitAssessment(ctx context.Context, userID string, applet *entity.Applet, req *AnswerRequest) (*SubmitResult, error) {
	subjects, all, err := s.access.SubjectScope(ctx, userID, applet.ID)
	if err != nil {
		return nil, err
	}
	repo, err := s.answerRepo(ctx, applet.ID)
	if err != nil {
		return nil, err
	}
	responseID := req.Meta.Reviewing.ResponseID
	original, err := repo.FindByID(ctx, responseID)
	if err != nil || original.AppletID != applet.ID {
		if err == nil || errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.AnswerNotFound(responseID)
		}
		return nil, err
	}
	if !all && (original.TargetSubjectID == nil || !containsString(subjects, *original.TargetSubjectID)) {
		return nil, apperr.ReviewerSubjectDenied(strOrEmpty(original.TargetSubjectID))
	}

	assessmentID, err := s.ensureAssessmentActivity(ctx, req.ActivityID, req.Version, original)
	if err != nil {
		return nil, err
	}
	item, err := buildItem(original.ID, userID, req.Answer)
	if err != nil {
		return nil, err
	}
	item.IsAssessment = true
	item.AssessmentActivityID = &assessmentID

	err = database.Atomic(ctx, repo.DB(), func(tx *gorm.DB) error {
		return repository.NewAnswerRepository(tx).ReplaceAssessment(ctx, &item)
	})
	if err != nil {
		return nil, fmt.Errorf("store assessment: %w", err)
	}
	original.Items = append(original.Items, item)
	return &SubmitResult{Answer: original}, nil
}

// ensureAssessmentActivity returns the assessment activity's history id in
// the version of the reviewed answer. When the activity only exists in the
// submitted version its snapshot is copied into the answer's version.
func (s *AnswerService) ensureAssessmentActivity(ctx context.Context, activityID, version string, original *entity.Answer) (string, error) {
	targetID := entity.IDVersion(activityID, original.Version)
	existing, err := s.repos.Applet.FindActivityHistory(ctx, targetID)
	if err == nil {
		if !existing.IsReviewable {
			return "", apperr.Validation("ACTIVITY_NOT_REVIEWABLE", "activity %s is not an assessment", activityID)
		}
		return targetID, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}

	src, err := s.repos.Applet.FindActivityHistory(ctx, entity.IDVersion(activityID, version))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperr.ActivityNotFound(activityID)
		}
		return "", err
	}
	if !src.IsReviewable {
		return "", apperr.Validation("ACTIVITY_NOT_REVIEWABLE", "activity %s is not an assessment", activityID)
	}

	cp := entity.ActivityHistory{
		IDVersion:     targetID,
		ID:            src.ID,
		AppletID:      original.AppletHistoryID,
		ActivityAttrs: src.ActivityAttrs,
	}
	for _, it := range src.Items {
		cp.Items = append(cp.Items, entity.ActivityItemHistory{
			IDVersion:  entity.IDVersion(it.ID, original.Version),
			ID:         it.ID,
			ActivityID: targetID,
			ItemAttrs:  it.ItemAttrs,
		})
	}
	err = database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		return s.repos.WithTx(tx).Applet.CreateActivityHistory(ctx, &cp)
	})
	if err != nil {
		return "", fmt.Errorf("copy assessment activity: %w", err)
	}
	return targetID, nil
}

// ========== Reviewer views ==========

type ReviewFilter struct {
	TargetSubjectID string `form:"target_subject_id"`
	ActivityID      string `form:"activity_id"`
	RespondentID    string `form:"respondent_id"`
	Page            int    `form:"page"`
	PageSize        int    `form:"page_size"`
}

// ReviewAnswer is an encrypted answer with the schema of its activity
// version.
type ReviewAnswer struct {
	entity.Answer
	Activity *entity.ActivityHistory `json:"activity,omitempty"`
}

type ReviewPage struct {
	Items []ReviewAnswer `json:"items"`
	Total int64          `json:"total"`
}

// scopedFilter narrows a listing to the subjects the user may review.
// Subjects outside the scope are dropped, never reported.
func (s *AnswerService) scopedFilter(ctx context.Context, userID, appletID string, f ReviewFilter) (repository.AnswerFilter, error) {
	out := repository.AnswerFilter{
		AppletID:     appletID,
		RespondentID: f.RespondentID,
		Page:         f.Page,
		PageSize:     f.PageSize,
	}
	if out.PageSize <= 0 {
		out.PageSize = 20
	}
	subjects, all, err := s.access.SubjectScope(ctx, userID, appletID)
	if err != nil {
		return out, err
	}
	switch {
	case all && f.TargetSubjectID != "":
		out.TargetSubjectIDs = []string{f.TargetSubjectID}
	case !all && f.TargetSubjectID != "":
		out.TargetSubjectIDs = []string{}
		if containsString(subjects, f.TargetSubjectID) {
			out.TargetSubjectIDs = []string{f.TargetSubjectID}
		}
	case !all:
		out.TargetSubjectIDs = subjects
	}

	if f.ActivityID != "" {
		hs, err := s.repos.Applet.ListHistories(ctx, appletID)
		if err != nil {
			return out, err
		}
		for _, h := range hs {
			out.ActivityHistoryIDs = append(out.ActivityHistoryIDs, entity.IDVersion(f.ActivityID, h.Version))
		}
		if len(out.ActivityHistoryIDs) == 0 {
			out.TargetSubjectIDs = []string{}
		}
	}
	return out, nil
}

// bound drops answers whose applet version does not resolve.
func (s *AnswerService) bound(ctx context.Context, answers []entity.Answer) ([]entity.Answer, error) {
	ids := make([]string, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.AppletHistoryID)
	}
	exists, err := s.repos.Applet.HistoryExists(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := answers[:0]
	for _, a := range answers {
		if exists[a.AppletHistoryID] {
			out = append(out, a)
		}
	}
	return out, nil
}

// Review lists the applet's encrypted answers visible to the reviewer.
func (s *AnswerService) Review(ctx context.Context, userID, appletID string, f ReviewFilter) (*ReviewPage, error) {
	if _, err := s.repos.Applet.FindByID(ctx, appletID); err != nil {
		return nil, appletLookup(appletID, err)
	}
	filter, err := s.scopedFilter(ctx, userID, appletID, f)
	if err != nil {
		return nil, err
	}
	repo, err := s.answerRepo(ctx, appletID)
	if err != nil {
		return nil, err
	}
	answers, total, err := repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	n := len(answers)
	if answers, err = s.bound(ctx, answers); err != nil {
		return nil, err
	}
	total -= int64(n - len(answers))

	schemas := make(map[string]*entity.ActivityHistory)
	page := &ReviewPage{Items: make([]ReviewAnswer, 0, len(answers)), Total: total}
	for _, a := range answers {
		ah, ok := schemas[a.ActivityHistoryID]
		if !ok {
			ah, err = s.repos.Applet.FindActivityHistory(ctx, a.ActivityHistoryID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			schemas[a.ActivityHistoryID] = ah
		}
		page.Items = append(page.Items, ReviewAnswer{Answer: a, Activity: ah})
	}
	return page, nil
}

type AssessmentEntry struct {
	AnswerID string            `json:"answer_id"`
	Item     entity.AnswerItem `json:"item"`
}

type AssessmentPage struct {
	Items []AssessmentEntry `json:"items"`
	Total int64             `json:"total"`
}

// Assessments lists the assessments attached to the answers a review
// listing with the same filter would return. Reviewers see their own
// assessments only.
func (s *AnswerService) Assessments(ctx context.Context, userID, appletID string, f ReviewFilter) (*AssessmentPage, error) {
	review, err := s.Review(ctx, userID, appletID, f)
	if err != nil {
		return nil, err
	}
	_, all, err := s.access.SubjectScope(ctx, userID, appletID)
	if err != nil {
		return nil, err
	}
	reviewer := ""
	if !all {
		reviewer = userID
	}
	ids := make([]string, 0, len(review.Items))
	for _, a := range review.Items {
		ids = append(ids, a.ID)
	}
	repo, err := s.answerRepo(ctx, appletID)
	if err != nil {
		return nil, err
	}
	items, err := repo.ListAssessments(ctx, ids, reviewer)
	if err != nil {
		return nil, err
	}
	page := &AssessmentPage{Items: make([]AssessmentEntry, 0, len(items)), Total: int64(len(items))}
	for _, it := range items {
		page.Items = append(page.Items, AssessmentEntry{AnswerID: it.AnswerID, Item: it})
	}
	return page, nil
}

// AssessmentView is a reviewer's assessment of one answer together with the
// assessment activity available in the answer's version.
type AssessmentView struct {
	Answer     *entity.Answer          `json:"answer"`
	Assessment *entity.AnswerItem      `json:"assessment,omitempty"`
	Activity   *entity.ActivityHistory `json:"activity,omitempty"`
}

// scopedAnswer loads an answer of the applet the user may review.
func (s *AnswerService) scopedAnswer(ctx context.Context, userID, appletID, answerID string) (*entity.Answer, *repository.AnswerRepository, error) {
	subjects, all, err := s.access.SubjectScope(ctx, userID, appletID)
	if err != nil {
		return nil, nil, err
	}
	repo, err := s.answerRepo(ctx, appletID)
	if err != nil {
		return nil, nil, err
	}
	a, err := repo.FindByID(ctx, answerID)
	if err != nil || a.AppletID != appletID {
		if err == nil || errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.AnswerNotFound(answerID)
		}
		return nil, nil, err
	}
	if !all && (a.TargetSubjectID == nil || !containsString(subjects, *a.TargetSubjectID)) {
		return nil, nil, apperr.ReviewerSubjectDenied(strOrEmpty(a.TargetSubjectID))
	}
	bound, err := s.bound(ctx, []entity.Answer{*a})
	if err != nil {
		return nil, nil, err
	}
	if len(bound) == 0 {
		return nil, nil, apperr.AnswerNotFound(answerID)
	}
	return a, repo, nil
}

// Assessment returns the caller's assessment of an answer.
func (s *AnswerService) Assessment(ctx context.Context, userID, appletID, answerID string) (*AssessmentView, error) {
	a, repo, err := s.scopedAnswer(ctx, userID, appletID, answerID)
	if err != nil {
		return nil, err
	}
	view := &AssessmentView{Answer: a}
	items, err := repo.ListAssessments(ctx, []string{a.ID}, userID)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		view.Assessment = &items[len(items)-1]
	}
	acts, err := s.repos.Applet.ListActivityHistories(ctx, a.AppletHistoryID)
	if err != nil {
		return nil, err
	}
	for i := range acts {
		if acts[i].IsReviewable {
			view.Activity = &acts[i]
			break
		}
	}
	return view, nil
}

// ========== Notes ==========

type NoteRequest struct {
	Note string `json:"note" binding:"required"`
}

// NoteView is a note with its text opened.
type NoteView struct {
	ID         string    `json:"id"`
	AnswerID   string    `json:"answer_id"`
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *AnswerService) noteView(n *entity.AnswerNote) (NoteView, error) {
	text := n.Note
	if s.box != nil {
		plain, err := s.box.Open(n.Note)
		if err != nil {
			return NoteView{}, apperr.EncryptionFailure(err)
		}
		text = plain
	}
	return NoteView{
		ID:         n.ID,
		AnswerID:   n.AnswerID,
		ActivityID: n.ActivityID,
		UserID:     n.UserID,
		Note:       text,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}, nil
}

func (s *AnswerService) sealNote(text string) (string, error) {
	if s.box == nil {
		return text, nil
	}
	sealed, err := s.box.Seal(text)
	if err != nil {
		return "", apperr.EncryptionFailure(err)
	}
	return sealed, nil
}

func (s *AnswerService) CreateNote(ctx context.Context, userID, appletID, answerID, activityID string, req *NoteRequest) (*NoteView, error) {
	if _, _, err := s.scopedAnswer(ctx, userID, appletID, answerID); err != nil {
		return nil, err
	}
	sealed, err := s.sealNote(req.Note)
	if err != nil {
		return nil, err
	}
	n := &entity.AnswerNote{
		ID:         uuid.New().String(),
		AnswerID:   answerID,
		ActivityID: activityID,
		UserID:     userID,
		Note:       sealed,
	}
	if err := s.repos.Note.Create(ctx, n); err != nil {
		return nil, err
	}
	v, err := s.noteView(n)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *AnswerService) ListNotes(ctx context.Context, userID, appletID, answerID, activityID string) ([]NoteView, error) {
	if _, _, err := s.scopedAnswer(ctx, userID, appletID, answerID); err != nil {
		return nil, err
	}
	notes, err := s.repos.Note.ListByAnswer(ctx, answerID, activityID)
	if err != nil {
		return nil, err
	}
	out := make([]NoteView, 0, len(notes))
	for i := range notes {
		v, err := s.noteView(&notes[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// authoredNote loads a note of the answer written by the user.
func (s *AnswerService) authoredNote(ctx context.Context, userID, appletID, answerID, noteID string) (*entity.AnswerNote, error) {
	if _, _, err := s.scopedAnswer(ctx, userID, appletID, answerID); err != nil {
		return nil, err
	}
	n, err := s.repos.Note.FindByID(ctx, noteID)
	if err != nil || n.AnswerID != answerID {
		if err == nil || errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("NOTE_NOT_FOUND", "note %s not found", noteID)
		}
		return nil, err
	}
	if n.UserID != userID {
		return nil, apperr.AccessDenied("NOTE_AUTHOR_REQUIRED", "only the author can change a note")
	}
	return n, nil
}

func (s *AnswerService) UpdateNote(ctx context.Context, userID, appletID, answerID, noteID string, req *NoteRequest) (*NoteView, error) {
	n, err := s.authoredNote(ctx, userID, appletID, answerID, noteID)
	if err != nil {
		return nil, err
	}
	if n.Note, err = s.sealNote(req.Note); err != nil {
		return nil, err
	}
	if err := s.repos.Note.Save(ctx, n); err != nil {
		return nil, err
	}
	v, err := s.noteView(n)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *AnswerService) DeleteNote(ctx context.Context, userID, appletID, answerID, noteID string) error {
	if _, err := s.authoredNote(ctx, userID, appletID, answerID, noteID); err != nil {
		return err
	}
	return s.repos.Note.Delete(ctx, noteID)
}

// ========== Alerts ==========

type AlertPage struct {
	Items []entity.Alert `json:"items"`
	Total int64          `json:"total"`
}

func (s *AnswerService) Alerts(ctx context.Context, userID string, page, pageSize int) (*AlertPage, error) {
	items, total, err := s.repos.Alert.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []entity.Alert{}
	}
	return &AlertPage{Items: items, Total: total}, nil
}

func (s *AnswerService) WatchAlert(ctx context.Context, userID, alertID string) error {
	ok, err := s.repos.Alert.MarkWatched(ctx, alertID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("ALERT_NOT_FOUND", "alert %s not found", alertID)
	}
	return nil
}
