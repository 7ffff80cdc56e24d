package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/apperr"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/repository"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/database"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SubjectRequest struct {
	AppletID     string  `json:"applet_id"`
	SecretUserID string  `json:"secret_user_id" binding:"required"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	Nickname     *string `json:"nickname"`
	Email        *string `json:"email"`
	Tag          *string `json:"tag"`
	Language     string  `json:"language"`
}

var subjectTags = []string{entity.SubjectTagChild, entity.SubjectTagParent, entity.SubjectTagTeacher, entity.SubjectTagTeam}

// SubjectView is a subject with its account flags.
type SubjectView struct {
	entity.Subject
	HasAccount   bool `json:"has_account"`
	IsRespondent bool `json:"is_respondent"`
}

type SubjectService struct {
	repos     *repository.Repositories
	access    *AccessService
	workspace *WorkspaceService
	logger    *zap.Logger
	now       func() time.Time
}

func NewSubjectService(d Deps, access *AccessService, workspace *WorkspaceService) *SubjectService {
	return &SubjectService{
		repos:     d.Repos,
		access:    access,
		workspace: workspace,
		logger:    d.Logger,
		now:       d.Now,
	}
}

func (s *SubjectService) find(ctx context.Context, id string) (*entity.Subject, error) {
	subj, err := s.repos.Subject.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.SubjectNotFound(id)
		}
		return nil, err
	}
	return subj, nil
}

func validateSubject(req *SubjectRequest) error {
	if req.Tag != nil && *req.Tag != "" && !containsString(subjectTags, *req.Tag) {
		return apperr.Validation("INVALID_SUBJECT_TAG", "unknown subject tag %q", *req.Tag)
	}
	return nil
}

func (s *SubjectService) checkSecret(ctx context.Context, appletID, secretID, excludeID string) error {
	taken, err := s.repos.Subject.SecretIDTaken(ctx, appletID, secretID, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperr.DuplicateSecretUserID(secretID)
	}
	return nil
}

// Create adds a limited subject (no account) to an applet.
func (s *SubjectService) Create(ctx context.Context, actorID string, req *SubjectRequest) (*entity.Subject, error) {
	if _, err := s.repos.Applet.FindByID(ctx, req.AppletID); err != nil {
		return nil, appletLookup(req.AppletID, err)
	}
	if _, err := s.access.Require(ctx, actorID, req.AppletID, ScheduleRoles...); err != nil {
		return nil, err
	}
	if err := validateSubject(req); err != nil {
		return nil, err
	}
	if err := s.checkSecret(ctx, req.AppletID, req.SecretUserID, ""); err != nil {
		return nil, err
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}
	subj := &entity.Subject{
		ID:           uuid.New().String(),
		AppletID:     req.AppletID,
		CreatorID:    &actorID,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Nickname:     req.Nickname,
		SecretUserID: req.SecretUserID,
		Tag:          req.Tag,
		Language:     lang,
	}
	if err := s.repos.Subject.Create(ctx, subj); err != nil {
		return nil, err
	}
	return subj, nil
}

func (s *SubjectService) Update(ctx context.Context, actorID, subjectID string, req *SubjectRequest) (*entity.Subject, error) {
	subj, err := s.find(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.Require(ctx, actorID, subj.AppletID, ScheduleRoles...); err != nil {
		return nil, err
	}
	if err := validateSubject(req); err != nil {
		return nil, err
	}
	if req.SecretUserID != subj.SecretUserID {
		if err := s.checkSecret(ctx, subj.AppletID, req.SecretUserID, subj.ID); err != nil {
			return nil, err
		}
	}
	subj.SecretUserID = req.SecretUserID
	subj.FirstName = req.FirstName
	subj.LastName = req.LastName
	subj.Nickname = req.Nickname
	subj.Tag = req.Tag
	if req.Email != nil {
		subj.Email = req.Email
	}
	if req.Language != "" {
		subj.Language = req.Language
	}
	if err := s.repos.Subject.Save(ctx, subj); err != nil {
		return nil, err
	}
	return subj, nil
}

// Get returns a subject to its own user, to applet admins and to reviewers
// scoped to it.
func (s *SubjectService) Get(ctx context.Context, actorID, subjectID string) (*SubjectView, error) {
	subj, err := s.find(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	self := subj.UserID != nil && *subj.UserID == actorID
	if !self {
		if _, err := s.access.Require(ctx, actorID, subj.AppletID, ScheduleRoles...); err != nil {
			subjects, all, serr := s.access.SubjectScope(ctx, actorID, subj.AppletID)
			if serr != nil {
				return nil, err
			}
			if !all && !containsString(subjects, subj.ID) {
				return nil, apperr.ReviewerSubjectDenied(subj.ID)
			}
		}
	}

	view := &SubjectView{Subject: *subj, HasAccount: subj.UserID != nil}
	if subj.UserID != nil {
		_, err := s.repos.Access.Find(ctx, *subj.UserID, subj.AppletID, entity.RoleRespondent)
		switch {
		case err == nil:
			view.IsRespondent = true
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}
	return view, nil
}

// Delete removes a subject and its relations. A subject with an account
// also loses its respondent role and individual schedule. With
// deleteAnswers every answer by or about the subject is removed from the
// applet's answer database.
func (s *SubjectService) Delete(ctx context.Context, actorID, subjectID string, deleteAnswers bool) error {
	subj, err := s.find(ctx, subjectID)
	if err != nil {
		return err
	}
	if _, err := s.access.Require(ctx, actorID, subj.AppletID, AdminRoles...); err != nil {
		return err
	}
	if subj.UserID != nil && *subj.UserID == actorID {
		return apperr.ChangeOwnAccess()
	}

	arbDB := s.repos.DB()
	if deleteAnswers {
		if arbDB, err = s.workspace.AnswerDB(ctx, subj.AppletID); err != nil {
			return err
		}
	}
	err = database.AtomicPair(ctx, s.repos.DB(), arbDB, func(reg, arb *gorm.DB) error {
		repos := s.repos.WithTx(reg)
		if err := repos.Subject.DeleteRelationsOf(ctx, subj.ID); err != nil {
			return err
		}
		if err := repos.Subject.SoftDelete(ctx, subj.ID); err != nil {
			return err
		}
		if subj.UserID != nil {
			if _, err := repos.Access.Delete(ctx, *subj.UserID, subj.AppletID, entity.RoleRespondent); err != nil {
				return err
			}
			if s.access.schedule != nil {
				if err := s.access.schedule.deleteUserEvents(ctx, repos, subj.AppletID, *subj.UserID, actorID); err != nil {
					return err
				}
			}
		}
		if deleteAnswers {
			n, err := repository.NewAnswerRepository(arb).DeleteBySubject(ctx, subj.AppletID, subj.ID)
			if err != nil {
				return err
			}
			s.logger.Info("subject answers removed",
				zap.String("applet_id", subj.AppletID),
				zap.String("subject_id", subj.ID),
				zap.Int64("answers", n),
			)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete subject %s: %w", subj.ID, err)
	}
	return nil
}

// ========== Relations ==========

type RelationRequest struct {
	Relation  string     `json:"relation" binding:"required"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

var relations = []string{
	entity.RelationTakeNow, entity.RelationParent, entity.RelationTeacher,
	entity.RelationSelf, entity.RelationOther,
}

// pair loads two subjects of the same applet and checks the actor
// administers it.
func (s *SubjectService) pair(ctx context.Context, actorID, sourceID, targetID string) (*entity.Subject, error) {
	source, err := s.find(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := s.find(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if source.AppletID != target.AppletID {
		return nil, apperr.SubjectNotFound(targetID)
	}
	if _, err := s.access.Require(ctx, actorID, source.AppletID, ScheduleRoles...); err != nil {
		return nil, err
	}
	return source, nil
}

// CreateRelation makes source an informant about target. take-now
// relations are time boxed and need an expiry in the future.
func (s *SubjectService) CreateRelation(ctx context.Context, actorID, sourceID, targetID string, req *RelationRequest) (*entity.SubjectRelation, error) {
	if !containsString(relations, req.Relation) {
		return nil, apperr.Validation("INVALID_RELATION", "unknown relation %q", req.Relation)
	}
	if sourceID == targetID && req.Relation != entity.RelationSelf {
		return nil, apperr.Validation("INVALID_RELATION", "a subject can only relate to itself as %q", entity.RelationSelf)
	}
	meta := entity.RelationMeta{}
	if req.Relation == entity.RelationTakeNow {
		if req.ExpiresAt == nil || !req.ExpiresAt.After(s.now()) {
			return nil, apperr.Validation("INVALID_RELATION_EXPIRY", "take-now relations need an expiry in the future")
		}
		exp := req.ExpiresAt.UTC()
		meta.ExpiresAt = &exp
	}
	if _, err := s.pair(ctx, actorID, sourceID, targetID); err != nil {
		return nil, err
	}
	rel := &entity.SubjectRelation{
		ID:              uuid.New().String(),
		SourceSubjectID: sourceID,
		TargetSubjectID: targetID,
		Relation:        req.Relation,
		Meta:            datatypes.NewJSONType(meta),
	}
	if err := s.repos.Subject.UpsertRelation(ctx, rel); err != nil {
		return nil, err
	}
	return rel, nil
}

func (s *SubjectService) DeleteRelation(ctx context.Context, actorID, sourceID, targetID string) error {
	if _, err := s.pair(ctx, actorID, sourceID, targetID); err != nil {
		return err
	}
	n, err := s.repos.Subject.DeleteRelation(ctx, sourceID, targetID)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("RELATION_NOT_FOUND", "no relation from subject %s to subject %s", sourceID, targetID)
	}
	return nil
}
