package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/repository"
	"go.uber.org/zap"
)

// RetentionService removes answers older than their applet's retention
// period.
type RetentionService struct {
	repos     *repository.Repositories
	workspace *WorkspaceService
	logger    *zap.Logger
	now       func() time.Time
}

func NewRetentionService(d Deps, workspace *WorkspaceService) *RetentionService {
	return &RetentionService{repos: d.Repos, workspace: workspace, logger: d.Logger, now: d.Now}
}

// Cutoff returns the instant before which answers are expired, or false
// when the applet keeps answers indefinitely.
func Cutoff(a entity.Applet, now time.Time) (time.Time, bool) {
	if a.RetentionPeriod == nil || a.RetentionType == nil || *a.RetentionPeriod <= 0 {
		return time.Time{}, false
	}
	n := *a.RetentionPeriod
	switch *a.RetentionType {
	case entity.RetentionDays:
		return now.AddDate(0, 0, -n), true
	case entity.RetentionWeeks:
		return now.AddDate(0, 0, -7*n), true
	case entity.RetentionMonths:
		return now.AddDate(0, -n, 0), true
	case entity.RetentionYears:
		return now.AddDate(-n, 0, 0), true
	}
	return time.Time{}, false
}

// Purge applies every applet's retention policy and returns the number of
// answers removed per applet. An unreachable workspace database is logged
// and skipped.
func (s *RetentionService) Purge(ctx context.Context) (map[string]int64, error) {
	applets, err := s.repos.Applet.ListWithRetention(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make(map[string]int64)
	for _, a := range applets {
		cutoff, ok := Cutoff(a, now)
		if !ok {
			continue
		}
		db, err := s.workspace.AnswerDB(ctx, a.ID)
		if err != nil {
			s.logger.Warn("retention skipped", zap.String("applet_id", a.ID), zap.Error(err))
			continue
		}
		n, err := repository.NewAnswerRepository(db).DeleteOlderThan(ctx, a.ID, cutoff)
		if err != nil {
			return out, fmt.Errorf("purge applet %s: %w", a.ID, err)
		}
		out[a.ID] = n
		if n > 0 {
			s.logger.Info("expired answers removed",
				zap.String("applet_id", a.ID),
				zap.Time("cutoff", cutoff),
				zap.Int64("answers", n),
			)
		}
	}
	return out, nil
}
