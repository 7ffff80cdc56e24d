package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/apperr"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/repository"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/crypto"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Job and message kinds.
const (
	JobReencryptAnswers = "reencrypt_answers"
)

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// reencryptArgs travel sealed inside the queue message.
type reencryptArgs struct {
	UserID string `json:"user_id"`
	OldKey string `json:"old_key"`
	NewKey string `json:"new_key"`
}

type sealedPayload struct {
	Data string `json:"data"`
}

type UserService struct {
	repos  *repository.Repositories
	box    *crypto.SecretBox
	queue  *queue.Queue
	logger *zap.Logger
}

func NewUserService(d Deps) *UserService {
	return &UserService{repos: d.Repos, box: d.Box, queue: d.Queue, logger: d.Logger}
}

func (s *UserService) Me(ctx context.Context, userID string) (*entity.User, error) {
	u, err := s.repos.User.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("USER_NOT_FOUND", "user %s not found", userID)
		}
		return nil, err
	}
	return u, nil
}

// HashPassword returns the bcrypt hash stored for a password.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// ChangePassword stores the new password and queues re-encryption of the
// user's answers, which were keyed by the old one.
func (s *UserService) ChangePassword(ctx context.Context, userID string, req *ChangePasswordRequest) (*entity.Job, error) {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(req.OldPassword)) != nil {
		return nil, apperr.AccessDenied("INVALID_PASSWORD", "old password does not match")
	}
	if s.box == nil {
		return nil, apperr.Fatal("SECRETS_NOT_CONFIGURED", "server secret key is not configured")
	}
	hashed, err := HashPassword(req.NewPassword)
	if err != nil {
		return nil, err
	}

	args := reencryptArgs{
		UserID: u.ID,
		OldKey: crypto.FormatByteList(crypto.PrivateKey(u.ID, u.Email, req.OldPassword)),
		NewKey: crypto.FormatByteList(crypto.PrivateKey(u.ID, u.Email, req.NewPassword)),
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	sealed, err := s.box.Seal(string(raw))
	if err != nil {
		return nil, apperr.EncryptionFailure(err)
	}

	if err := s.repos.User.UpdatePassword(ctx, u.ID, hashed); err != nil {
		return nil, err
	}
	job := &entity.Job{
		ID:        uuid.New().String(),
		CreatorID: u.ID,
		Name:      JobReencryptAnswers,
		Status:    entity.JobPending,
	}
	if err := s.repos.Job.Create(ctx, job); err != nil {
		return nil, err
	}
	if s.queue == nil {
		s.logger.Warn("no job queue configured, re-encryption not scheduled", zap.String("job_id", job.ID))
		return job, nil
	}
	msg, err := queue.NewMessage(JobReencryptAnswers, job.ID, sealedPayload{Data: sealed})
	if err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		return nil, apperr.Dependency("QUEUE_UNAVAILABLE", err, "job queue is unavailable")
	}
	return job, nil
}

// Job returns a job created by the user.
func (s *UserService) Job(ctx context.Context, userID, jobID string) (*entity.Job, error) {
	job, err := s.repos.Job.FindByID(ctx, jobID)
	if err != nil || job.CreatorID != userID {
		if err == nil || errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("JOB_NOT_FOUND", "job %s not found", jobID)
		}
		return nil, err
	}
	return job, nil
}

func (s *UserService) Jobs(ctx context.Context, userID string) ([]entity.Job, error) {
	return s.repos.Job.ListByCreator(ctx, userID)
}

// CancelJob flags a job; the worker stops at its next checkpoint.
func (s *UserService) CancelJob(ctx context.Context, userID, jobID string) error {
	job, err := s.Job(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if job.Status == entity.JobSuccess || job.Status == entity.JobError {
		return apperr.Conflict("JOB_FINISHED", "job %s already finished", jobID)
	}
	return s.repos.Job.Update(ctx, jobID, map[string]interface{}{"cancelled": true})
}
