package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/apperr"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/repository"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/database"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var roleRank = map[string]int{
	entity.RoleSuperAdmin:  7,
	entity.RoleOwner:       6,
	entity.RoleManager:     5,
	entity.RoleCoordinator: 4,
	entity.RoleEditor:      3,
	entity.RoleReviewer:    2,
	entity.RoleRespondent:  1,
}

// Role groups used by the permission checks.
var (
	AdminRoles    = []string{entity.RoleOwner, entity.RoleManager}
	EditorRoles   = []string{entity.RoleOwner, entity.RoleManager, entity.RoleEditor}
	ScheduleRoles = []string{entity.RoleOwner, entity.RoleManager, entity.RoleCoordinator}
	ReviewRoles   = []string{entity.RoleOwner, entity.RoleManager, entity.RoleReviewer}
	AnyRole       = []string{
		entity.RoleOwner, entity.RoleManager, entity.RoleCoordinator,
		entity.RoleEditor, entity.RoleReviewer, entity.RoleRespondent,
	}
)

// IsManagerial reports whether role is a non-respondent applet role.
func IsManagerial(role string) bool {
	switch role {
	case entity.RoleOwner, entity.RoleManager, entity.RoleCoordinator, entity.RoleEditor, entity.RoleReviewer:
		return true
	}
	return false
}

// SortRoles orders roles from most to least privileged.
func SortRoles(roles []string) {
	sort.SliceStable(roles, func(i, j int) bool { return roleRank[roles[i]] > roleRank[roles[j]] })
}

// AccessService resolves user roles per applet and manages grants.
type AccessService struct {
	repos     *repository.Repositories
	logger    *zap.Logger
	schedule  *ScheduleService
	workspace *WorkspaceService
}

func NewAccessService(d Deps) *AccessService {
	return &AccessService{repos: d.Repos, logger: d.Logger}
}

// Roles returns the user's roles on the applet, most privileged first.
func (s *AccessService) Roles(ctx context.Context, userID, appletID string) ([]string, error) {
	rows, err := s.repos.Access.ListByUserAndApplet(ctx, userID, appletID)
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(rows))
	for _, r := range rows {
		roles = append(roles, r.Role)
	}
	SortRoles(roles)
	return roles, nil
}

// Require returns the user's most privileged access row among roles, or a
// RoleRequired error when the user holds none of them.
func (s *AccessService) Require(ctx context.Context, userID, appletID string, roles ...string) (*entity.UserAppletAccess, error) {
	rows, err := s.repos.Access.ListByUserAndApplet(ctx, userID, appletID)
	if err != nil {
		return nil, err
	}
	var best *entity.UserAppletAccess
	for i := range rows {
		if !containsString(roles, rows[i].Role) {
			continue
		}
		if best == nil || roleRank[rows[i].Role] > roleRank[best.Role] {
			best = &rows[i]
		}
	}
	if best == nil {
		return nil, apperr.RoleRequired(appletID, roles...)
	}
	return best, nil
}

// SubjectScope resolves which subjects a reviewer-class user may see. all is
// true for owners and managers; reviewers are limited to meta.subjects.
func (s *AccessService) SubjectScope(ctx context.Context, userID, appletID string) (subjects []string, all bool, err error) {
	acc, err := s.Require(ctx, userID, appletID, ReviewRoles...)
	if err != nil {
		return nil, false, err
	}
	if acc.Role != entity.RoleReviewer {
		return nil, true, nil
	}
	subjects = acc.Meta.Data().Subjects
	if subjects == nil {
		subjects = []string{}
	}
	return subjects, false, nil
}

// RespondentIDs lists the users holding the respondent role on an applet.
func (s *AccessService) RespondentIDs(ctx context.Context, appletID string) ([]string, error) {
	rows, err := s.repos.Access.ListByApplet(ctx, appletID, entity.RoleRespondent)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	return ids, nil
}

// OwnerOf returns the owner user of an applet.
func OwnerOf(ctx context.Context, repos *repository.Repositories, appletID string) (string, error) {
	rows, err := repos.Access.ListByApplet(ctx, appletID, entity.RoleOwner)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", apperr.AppletNotFound(appletID)
	}
	return rows[0].UserID, nil
}

// Grant describes a role being given to a user.
type Grant struct {
	AppletID     string
	UserID       string
	Role         string
	InvitorID    string
	Subjects     []string
	SecretUserID string
	Nickname     string
	SubjectID    string // limited subject the respondent claims
}

// AddRole grants a role inside the caller's transaction. Granting an existing
// role returns the existing row unchanged. Managerial roles also ensure a
// respondent row and subject for the user.
func AddRole(ctx context.Context, repos *repository.Repositories, g Grant) (*entity.UserAppletAccess, error) {
	if existing, err := repos.Access.Find(ctx, g.UserID, g.AppletID, g.Role); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	ownerID := g.UserID
	if g.Role != entity.RoleOwner {
		var err error
		if ownerID, err = OwnerOf(ctx, repos, g.AppletID); err != nil {
			return nil, err
		}
	}
	invitor := g.InvitorID
	if invitor == "" {
		invitor = ownerID
	}

	meta := entity.AccessMeta{}
	switch g.Role {
	case entity.RoleReviewer:
		meta.Subjects = g.Subjects
	case entity.RoleRespondent:
		meta.SecretUserID = g.SecretUserID
		meta.Nickname = g.Nickname
	}
	row := &entity.UserAppletAccess{
		ID:        uuid.New().String(),
		UserID:    g.UserID,
		AppletID:  g.AppletID,
		Role:      g.Role,
		OwnerID:   ownerID,
		InvitorID: invitor,
		Meta:      datatypes.NewJSONType(meta),
	}
	if err := repos.Access.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("create %s access: %w", g.Role, err)
	}

	if g.Role == entity.RoleRespondent {
		if err := ensureSubject(ctx, repos, g, invitor); err != nil {
			return nil, err
		}
	} else if IsManagerial(g.Role) {
		resp := g
		resp.Role = entity.RoleRespondent
		resp.Subjects = nil
		resp.SubjectID = ""
		if _, err := AddRole(ctx, repos, resp); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// ensureSubject binds the respondent to a subject of the applet: the claimed
// limited subject when given, an existing one, or a new one.
func ensureSubject(ctx context.Context, repos *repository.Repositories, g Grant, creatorID string) error {
	if _, err := repos.Subject.FindByUserAndApplet(ctx, g.UserID, g.AppletID); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if g.SubjectID != "" {
		subj, err := repos.Subject.FindByID(ctx, g.SubjectID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.SubjectNotFound(g.SubjectID)
			}
			return err
		}
		if subj.AppletID != g.AppletID {
			return apperr.SubjectNotFound(g.SubjectID)
		}
		subj.UserID = &g.UserID
		return repos.Subject.Save(ctx, subj)
	}

	user, err := repos.User.FindByID(ctx, g.UserID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", g.UserID, err)
	}
	secret := g.SecretUserID
	if secret == "" {
		secret = uuid.New().String()
	}
	subj := &entity.Subject{
		ID:           uuid.New().String(),
		AppletID:     g.AppletID,
		UserID:       &g.UserID,
		CreatorID:    &creatorID,
		Email:        &user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		SecretUserID: secret,
		Language:     "en",
	}
	if g.Nickname != "" {
		subj.Nickname = &g.Nickname
	}
	return repos.Subject.Create(ctx, subj)
}

// ========== Invitations ==========

type InviteRequest struct {
	Email        string   `json:"email" binding:"required,email"`
	Role         string   `json:"role" binding:"required"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Nickname     *string  `json:"nickname"`
	SecretUserID *string  `json:"secret_user_id"`
	Subjects     []string `json:"subjects"`
	SubjectID    string   `json:"subject_id"`
}

// Invite records a pending invitation. Coordinators may only invite
// respondents; owners cannot be invited.
func (s *AccessService) Invite(ctx context.Context, inviterID, appletID string, req *InviteRequest) (*entity.Invitation, error) {
	if _, err := s.repos.Applet.FindByID(ctx, appletID); err != nil {
		return nil, appletLookup(appletID, err)
	}
	acc, err := s.Require(ctx, inviterID, appletID, ScheduleRoles...)
	if err != nil {
		return nil, err
	}
	if req.Role == entity.RoleOwner || roleRank[req.Role] == 0 || req.Role == entity.RoleSuperAdmin {
		return nil, apperr.Validation("INVALID_ROLE", "role %q cannot be invited", req.Role)
	}
	if acc.Role == entity.RoleCoordinator && req.Role != entity.RoleRespondent {
		return nil, apperr.RoleRequired(appletID, AdminRoles...)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	exists, err := s.repos.Access.PendingInvitationExists(ctx, appletID, email, req.Role)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.DuplicateInvitation(email)
	}

	meta := entity.InvitationMeta{}
	switch req.Role {
	case entity.RoleRespondent:
		if req.SecretUserID == nil || *req.SecretUserID == "" {
			return nil, apperr.Validation("SECRET_USER_ID_REQUIRED", "respondent invitations need a secret user id")
		}
		if req.SubjectID == "" {
			taken, err := s.repos.Subject.SecretIDTaken(ctx, appletID, *req.SecretUserID, "")
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, apperr.DuplicateSecretUserID(*req.SecretUserID)
			}
		}
		meta.SubjectID = req.SubjectID
	case entity.RoleReviewer:
		meta.Subjects = req.Subjects
	}

	inv := &entity.Invitation{
		ID:           uuid.New().String(),
		Key:          uuid.New().String(),
		AppletID:     appletID,
		Email:        email,
		Role:         req.Role,
		InvitorID:    inviterID,
		Status:       entity.InvitationPending,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Nickname:     req.Nickname,
		SecretUserID: req.SecretUserID,
		Meta:         datatypes.NewJSONType(meta),
	}
	if err := s.repos.Access.CreateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	return inv, nil
}

func (s *AccessService) findInvitation(ctx context.Context, key, userID string) (*entity.Invitation, error) {
	inv, err := s.repos.Access.FindInvitation(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("INVITATION_NOT_FOUND", "invitation not found")
		}
		return nil, err
	}
	if inv.Status != entity.InvitationPending {
		return nil, apperr.Conflict("INVITATION_ALREADY_PROCESSED", "invitation is already %s", inv.Status)
	}
	user, err := s.repos.User.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(user.Email, inv.Email) {
		return nil, apperr.AccessDenied("INVITATION_EMAIL_MISMATCH", "invitation was sent to another email")
	}
	return inv, nil
}

// AcceptInvitation grants the invited role to the user.
func (s *AccessService) AcceptInvitation(ctx context.Context, key, userID string) (*entity.UserAppletAccess, error) {
	inv, err := s.findInvitation(ctx, key, userID)
	if err != nil {
		return nil, err
	}
	var row *entity.UserAppletAccess
	err = database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)
		g := Grant{
			AppletID:  inv.AppletID,
			UserID:    userID,
			Role:      inv.Role,
			InvitorID: inv.InvitorID,
			Subjects:  inv.Meta.Data().Subjects,
			SubjectID: inv.Meta.Data().SubjectID,
		}
		if inv.SecretUserID != nil {
			g.SecretUserID = *inv.SecretUserID
		}
		if inv.Nickname != nil {
			g.Nickname = *inv.Nickname
		}
		var err error
		if row, err = AddRole(ctx, repos, g); err != nil {
			return err
		}
		inv.Status = entity.InvitationApproved
		return repos.Access.SaveInvitation(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *AccessService) DeclineInvitation(ctx context.Context, key, userID string) error {
	inv, err := s.findInvitation(ctx, key, userID)
	if err != nil {
		return err
	}
	inv.Status = entity.InvitationDeclined
	return s.repos.Access.SaveInvitation(ctx, inv)
}

// ========== Role management ==========

// RemoveRole revokes roles of another user. Owners keep their role until
// ownership is transferred.
func (s *AccessService) RemoveRole(ctx context.Context, actorID, appletID, userID string, roles []string) error {
	if actorID == userID {
		return apperr.ChangeOwnAccess()
	}
	if _, err := s.Require(ctx, actorID, appletID, AdminRoles...); err != nil {
		return err
	}
	if len(roles) == 0 {
		return apperr.Validation("ROLES_REQUIRED", "no roles to remove")
	}
	for _, r := range roles {
		if r == entity.RoleOwner {
			return apperr.AccessDenied("OWNER_ROLE_PROTECTED", "the owner role can only be transferred")
		}
	}
	return database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)
		n, err := repos.Access.Delete(ctx, userID, appletID, roles...)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("ACCESS_NOT_FOUND", "user has none of the roles")
		}
		if containsString(roles, entity.RoleRespondent) && s.schedule != nil {
			return s.schedule.deleteUserEvents(ctx, repos, appletID, userID, actorID)
		}
		return nil
	})
}

// TransferOwnership moves the owner role of an applet to another user. The
// previous owner loses every role on the applet.
func (s *AccessService) TransferOwnership(ctx context.Context, actorID, appletID, newOwnerID string) error {
	if _, err := s.repos.Applet.FindByID(ctx, appletID); err != nil {
		return appletLookup(appletID, err)
	}
	if _, err := s.Require(ctx, actorID, appletID, entity.RoleOwner); err != nil {
		return apperr.TransferOwnershipDenied(appletID)
	}
	if actorID == newOwnerID {
		return apperr.ChangeOwnAccess()
	}
	if _, err := s.repos.User.FindByID(ctx, newOwnerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("USER_NOT_FOUND", "user %s not found", newOwnerID)
		}
		return err
	}
	err := database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)
		if _, err := repos.Access.Delete(ctx, actorID, appletID); err != nil {
			return err
		}
		if _, err := repos.Access.Delete(ctx, newOwnerID, appletID, entity.RoleOwner, entity.RoleManager); err != nil {
			return err
		}
		if _, err := AddRole(ctx, repos, Grant{AppletID: appletID, UserID: newOwnerID, Role: entity.RoleOwner, InvitorID: actorID}); err != nil {
			return err
		}
		return repos.Access.SetOwner(ctx, appletID, newOwnerID)
	})
	if err != nil {
		return err
	}

	// answers now belong to the new owner's workspace
	if s.workspace != nil {
		if err := s.workspace.Invalidate(ctx, appletID); err != nil {
			s.logger.Warn("arbitrary cache invalidation failed", zap.String("applet_id", appletID), zap.Error(err))
		}
	}
	s.logger.Info("applet ownership transferred",
		zap.String("applet_id", appletID),
		zap.String("from", actorID),
		zap.String("to", newOwnerID))
	return nil
}

// ========== Pins ==========

type PinRequest struct {
	OwnerID         string  `json:"owner_id" binding:"required"`
	Role            string  `json:"role" binding:"required,oneof=manager respondent"`
	PinnedUserID    *string `json:"pinned_user_id"`
	PinnedSubjectID *string `json:"pinned_subject_id"`
}

// TogglePin pins or unpins a manager or respondent in the owner's workspace
// list. It returns whether the target is pinned afterwards.
func (s *AccessService) TogglePin(ctx context.Context, userID string, req *PinRequest) (bool, error) {
	var target string
	switch {
	case req.Role == entity.RoleManager && req.PinnedUserID != nil:
		target = *req.PinnedUserID
	case req.Role == entity.RoleRespondent && req.PinnedSubjectID != nil:
		target = *req.PinnedSubjectID
	default:
		return false, apperr.Validation("INVALID_PIN", "managers pin users, respondents pin subjects")
	}

	pin, err := s.repos.Access.FindPin(ctx, userID, req.OwnerID, req.Role, target)
	if err == nil {
		return false, s.repos.Access.DeletePin(ctx, pin.ID)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	pin = &entity.UserPin{
		ID:              uuid.New().String(),
		UserID:          userID,
		OwnerID:         req.OwnerID,
		Role:            req.Role,
		PinnedUserID:    req.PinnedUserID,
		PinnedSubjectID: req.PinnedSubjectID,
	}
	if req.Role == entity.RoleManager {
		pin.PinnedSubjectID = nil
	} else {
		pin.PinnedUserID = nil
	}
	if err := s.repos.Access.CreatePin(ctx, pin); err != nil {
		return false, err
	}
	return true, nil
}

func (s *AccessService) ListPins(ctx context.Context, userID, ownerID string) ([]entity.UserPin, error) {
	return s.repos.Access.ListPins(ctx, userID, ownerID)
}

// ========== helpers ==========

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func appletLookup(id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.AppletNotFound(id)
	}
	return err
}
