package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/repository"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/crypto"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/database"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/queue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errJobCancelled = errors.New("job cancelled")

// ReencryptService rewrites a user's answers under their new key after a
// password change.
type ReencryptService struct {
	repos      *repository.Repositories
	workspace  *WorkspaceService
	box        *crypto.SecretBox
	maxRetries int
	logger     *zap.Logger
}

func NewReencryptService(d Deps, workspace *WorkspaceService) *ReencryptService {
	return &ReencryptService{
		repos:      d.Repos,
		workspace:  workspace,
		box:        d.Box,
		maxRetries: d.Config.Jobs.MaxRetries,
		logger:     d.Logger,
	}
}

type reencryptStats struct {
	Applets   int      `json:"applets"`
	Items     int      `json:"items"`
	Converted int      `json:"converted"`
	Skipped   []string `json:"skipped_applets,omitempty"`
}

func (s *ReencryptService) args(msg queue.Message) (*reencryptArgs, error) {
	if s.box == nil {
		return nil, errors.New("server secret key is not configured")
	}
	var p sealedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	plain, err := s.box.Open(p.Data)
	if err != nil {
		return nil, err
	}
	var a reencryptArgs
	if err := json.Unmarshal([]byte(plain), &a); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	return &a, nil
}

func (s *ReencryptService) setStatus(ctx context.Context, jobID string, fields map[string]interface{}) {
	if err := s.repos.Job.Update(ctx, jobID, fields); err != nil {
		s.logger.Error("update job", zap.String("job_id", jobID), zap.Error(err))
	}
}

// Handle runs one attempt of a re-encryption job. Errors are returned so
// the worker reschedules the message; the Job row mirrors the outcome.
func (s *ReencryptService) Handle(ctx context.Context, msg queue.Message) error {
	args, err := s.args(msg)
	if err != nil {
		s.setStatus(ctx, msg.JobID, map[string]interface{}{"status": entity.JobError, "last_error": err.Error()})
		return queue.Permanent(err)
	}
	job, err := s.repos.Job.FindByID(ctx, msg.JobID)
	if err != nil {
		return queue.Permanent(fmt.Errorf("load job %s: %w", msg.JobID, err))
	}
	if job.Cancelled {
		s.setStatus(ctx, job.ID, map[string]interface{}{"status": entity.JobError, "last_error": errJobCancelled.Error()})
		return nil
	}
	s.setStatus(ctx, job.ID, map[string]interface{}{"status": entity.JobInProgress, "retries": msg.Attempt})

	stats, err := s.run(ctx, job.ID, args)
	details := jsonOf(stats)
	switch {
	case errors.Is(err, errJobCancelled):
		s.setStatus(ctx, job.ID, map[string]interface{}{"status": entity.JobError, "last_error": err.Error(), "details": details})
		return nil
	case err != nil:
		status := entity.JobError
		if !queue.IsPermanent(err) && msg.Attempt < s.maxRetries {
			status = entity.JobRetry
		}
		s.setStatus(ctx, job.ID, map[string]interface{}{"status": status, "last_error": err.Error(), "details": details})
		return err
	}
	s.setStatus(ctx, job.ID, map[string]interface{}{"status": entity.JobSuccess, "last_error": "", "details": details})
	s.logger.Info("answers re-encrypted",
		zap.String("job_id", job.ID),
		zap.String("user_id", args.UserID),
		zap.Int("applets", stats.Applets),
		zap.Int("converted", stats.Converted),
	)
	return nil
}

func (s *ReencryptService) run(ctx context.Context, jobID string, args *reencryptArgs) (*reencryptStats, error) {
	stats := &reencryptStats{}
	oldKey, err := crypto.ParseByteList(args.OldKey)
	if err != nil {
		return stats, queue.Permanent(err)
	}
	newKey, err := crypto.ParseByteList(args.NewKey)
	if err != nil {
		return stats, queue.Permanent(err)
	}

	appletIDs, err := s.repos.Access.AppletIDsByUser(ctx, args.UserID)
	if err != nil {
		return stats, err
	}
	dbs, err := s.workspace.AnswerDBs(ctx, appletIDs)
	if err != nil {
		return stats, err
	}
	answered := make([]string, 0, len(appletIDs))
	owner := make(map[string]*gorm.DB)
	for db, ids := range dbs {
		got, err := repository.NewAnswerRepository(db).AppletIDsByRespondent(ctx, args.UserID)
		if err != nil {
			return stats, err
		}
		for _, id := range got {
			if containsString(ids, id) {
				answered = append(answered, id)
				owner[id] = db
			}
		}
	}
	sort.Strings(answered)

	for _, appletID := range answered {
		job, err := s.repos.Job.FindByID(ctx, jobID)
		if err != nil {
			return stats, err
		}
		if job.Cancelled {
			return stats, errJobCancelled
		}
		n, total, err := s.reencryptApplet(ctx, owner[appletID], appletID, args.UserID, oldKey, newKey)
		if err != nil {
			var skip skipError
			if errors.As(err, &skip) {
				s.logger.Warn("applet skipped during re-encryption",
					zap.String("applet_id", appletID),
					zap.String("user_id", args.UserID),
					zap.Error(err),
				)
				stats.Skipped = append(stats.Skipped, appletID)
				continue
			}
			return stats, fmt.Errorf("applet %s: %w", appletID, err)
		}
		stats.Applets++
		stats.Items += total
		stats.Converted += n
	}
	return stats, nil
}

// skipError marks an applet whose key material cannot be used.
type skipError struct{ err error }

func (e skipError) Error() string { return e.err.Error() }
func (e skipError) Unwrap() error { return e.err }

// reencryptApplet converts every item the user authored in one applet
// inside a single transaction. Items already under the new key are left
// alone so a retried attempt resumes where the last one stopped.
func (s *ReencryptService) reencryptApplet(ctx context.Context, db *gorm.DB, appletID, userID string, oldPriv, newPriv []byte) (int, int, error) {
	applet, err := s.repos.Applet.FindByIDUnscoped(ctx, appletID)
	if err != nil {
		return 0, 0, err
	}
	enc := applet.Encryption
	params, err := crypto.ParseParams(enc.Prime, enc.Base)
	if err != nil {
		return 0, 0, skipError{err}
	}
	appletPub, err := crypto.ParseByteList(enc.PublicKey)
	if err != nil {
		return 0, 0, skipError{err}
	}
	oldKey, err := crypto.SharedKey(oldPriv, appletPub, params)
	if err != nil {
		return 0, 0, skipError{err}
	}
	newKey, err := crypto.SharedKey(newPriv, appletPub, params)
	if err != nil {
		return 0, 0, skipError{err}
	}
	newPub := crypto.FormatByteList(crypto.PublicKey(newPriv, params))

	converted, total := 0, 0
	err = database.Atomic(ctx, db, func(tx *gorm.DB) error {
		repo := repository.NewAnswerRepository(tx)
		items, err := repo.ListItemsByRespondent(ctx, appletID, userID)
		if err != nil {
			return err
		}
		total = len(items)
		for i := range items {
			it := &items[i]
			if it.UserPublicKey == newPub {
				continue
			}
			if it.Answer, err = swapCipher(oldKey, newKey, it.Answer); err != nil {
				return fmt.Errorf("item %s answer: %w", it.ID, err)
			}
			if it.Events, err = swapCipher(oldKey, newKey, it.Events); err != nil {
				return fmt.Errorf("item %s events: %w", it.ID, err)
			}
			if it.Identifier != nil {
				// plain identifiers stay as they are
				id, err := swapCipher(oldKey, newKey, *it.Identifier)
				switch {
				case errors.Is(err, crypto.ErrMalformedCiphertext):
				case err != nil:
					return fmt.Errorf("item %s identifier: %w", it.ID, err)
				default:
					it.Identifier = &id
				}
			}
			it.UserPublicKey = newPub
			if err := repo.UpdateItemCipher(ctx, it); err != nil {
				return err
			}
			converted++
		}
		return nil
	})
	return converted, total, err
}

func swapCipher(oldKey, newKey []byte, payload string) (string, error) {
	if payload == "" {
		return payload, nil
	}
	plain, err := crypto.Decrypt(oldKey, payload)
	if err != nil {
		return "", err
	}
	return crypto.Encrypt(newKey, plain)
}
