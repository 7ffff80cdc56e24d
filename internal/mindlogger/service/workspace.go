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
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const arbitraryCachePrefix = "arbitrary:applet:"

// ArbitraryInfo is the resolved answer storage of an applet's workspace.
// DatabaseURI is plain text here and never leaves the process.
type ArbitraryInfo struct {
	UseArbitrary     bool   `json:"use_arbitrary"`
	DatabaseURI      string `json:"database_uri"`
	StorageType      string `json:"storage_type,omitempty"`
	StorageURL       string `json:"storage_url,omitempty"`
	StorageRegion    string `json:"storage_region,omitempty"`
	StorageBucket    string `json:"storage_bucket,omitempty"`
	StorageAccessKey string `json:"storage_access_key,omitempty"`
	StorageSecretKey string `json:"storage_secret_key,omitempty"`
}

// cachedInfo is what goes to redis: the URI and secret stay sealed.
type cachedInfo struct {
	Found bool          `json:"found"`
	Info  ArbitraryInfo `json:"info"`
}

// WorkspaceService routes each applet to the database holding its answers.
type WorkspaceService struct {
	repos  *repository.Repositories
	router *database.Router
	rdb    *redis.Client
	box    *crypto.SecretBox
	access *AccessService
	ttl    time.Duration
	logger *zap.Logger
}

func NewWorkspaceService(d Deps, access *AccessService) *WorkspaceService {
	ttl := d.Config.Cache.ArbitraryTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &WorkspaceService{
		repos:  d.Repos,
		router: d.Router,
		rdb:    d.Redis,
		box:    d.Box,
		access: access,
		ttl:    ttl,
		logger: d.Logger,
	}
}

// ArbitraryInfo returns the workspace storage of the applet's owner, or nil
// when the applet uses the default database.
func (s *WorkspaceService) ArbitraryInfo(ctx context.Context, appletID string) (*ArbitraryInfo, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, arbitraryCachePrefix+appletID).Bytes()
		if err == nil {
			var c cachedInfo
			if json.Unmarshal(raw, &c) == nil {
				if !c.Found {
					return nil, nil
				}
				return s.open(c.Info)
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("arbitrary cache read failed", zap.String("applet_id", appletID), zap.Error(err))
		}
	}

	ws, err := s.repos.Workspace.FindByApplet(ctx, appletID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	c := cachedInfo{}
	if ws != nil && ws.UseArbitrary && ws.DatabaseURI != "" {
		c.Found = true
		c.Info = ArbitraryInfo{
			UseArbitrary:     true,
			DatabaseURI:      ws.DatabaseURI,
			StorageType:      ws.StorageType,
			StorageURL:       ws.StorageURL,
			StorageRegion:    ws.StorageRegion,
			StorageBucket:    ws.StorageBucket,
			StorageAccessKey: ws.StorageAccessKey,
			StorageSecretKey: ws.StorageSecretKey,
		}
	}
	if s.rdb != nil {
		if b, err := json.Marshal(c); err == nil {
			if err := s.rdb.Set(ctx, arbitraryCachePrefix+appletID, b, s.ttl).Err(); err != nil {
				s.logger.Warn("arbitrary cache write failed", zap.String("applet_id", appletID), zap.Error(err))
			}
		}
	}
	if !c.Found {
		return nil, nil
	}
	return s.open(c.Info)
}

// open unseals the credentials of a cached or freshly loaded entry.
func (s *WorkspaceService) open(info ArbitraryInfo) (*ArbitraryInfo, error) {
	uri, err := s.unseal(info.DatabaseURI)
	if err != nil {
		return nil, err
	}
	secret, err := s.unseal(info.StorageSecretKey)
	if err != nil {
		return nil, err
	}
	info.DatabaseURI = uri
	info.StorageSecretKey = secret
	return &info, nil
}

func (s *WorkspaceService) unseal(v string) (string, error) {
	if v == "" || s.box == nil {
		return v, nil
	}
	plain, err := s.box.Open(v)
	if err != nil {
		return "", apperr.Fatal("WORKSPACE_SECRET_INVALID", "workspace credentials cannot be opened").Wrap(err)
	}
	return plain, nil
}

func (s *WorkspaceService) seal(v string) (string, error) {
	if v == "" || s.box == nil {
		return v, nil
	}
	return s.box.Seal(v)
}

// AnswerDB returns the handle of the database holding the applet's answers.
func (s *WorkspaceService) AnswerDB(ctx context.Context, appletID string) (*gorm.DB, error) {
	info, err := s.ArbitraryInfo(ctx, appletID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return s.repos.DB(), nil
	}
	return s.dbFor(ctx, info.DatabaseURI)
}

func (s *WorkspaceService) dbFor(ctx context.Context, uri string) (*gorm.DB, error) {
	if uri == "" {
		return s.repos.DB(), nil
	}
	if s.router == nil {
		return nil, apperr.ArbitraryUnreachable(errors.New("no database router configured"))
	}
	db, err := s.router.Get(ctx, uri)
	if err != nil {
		return nil, apperr.ArbitraryUnreachable(err)
	}
	return db, nil
}

// ArbitrariesMap groups applets by answer database URI. The default
// database is keyed by the empty string.
func (s *WorkspaceService) ArbitrariesMap(ctx context.Context, appletIDs []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, id := range appletIDs {
		info, err := s.ArbitraryInfo(ctx, id)
		if err != nil {
			return nil, err
		}
		key := ""
		if info != nil {
			key = info.DatabaseURI
		}
		out[key] = append(out[key], id)
	}
	return out, nil
}

// AnswerDBs resolves the database handle of each group of ArbitrariesMap.
func (s *WorkspaceService) AnswerDBs(ctx context.Context, appletIDs []string) (map[*gorm.DB][]string, error) {
	groups, err := s.ArbitrariesMap(ctx, appletIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[*gorm.DB][]string, len(groups))
	for uri, ids := range groups {
		db, err := s.dbFor(ctx, uri)
		if err != nil {
			return nil, err
		}
		out[db] = append(out[db], ids...)
	}
	return out, nil
}

type ArbitraryServerRequest struct {
	DatabaseURI      string `json:"database_uri" binding:"required"`
	StorageType      string `json:"storage_type"`
	StorageURL       string `json:"storage_url"`
	StorageRegion    string `json:"storage_region"`
	StorageBucket    string `json:"storage_bucket"`
	StorageAccessKey string `json:"storage_access_key"`
	StorageSecretKey string `json:"storage_secret_key"`
}

// SetArbitraryServer points the owner's workspace at an external answers
// database after checking it is reachable, and drops cached routes.
func (s *WorkspaceService) SetArbitraryServer(ctx context.Context, actorID, ownerID string, req *ArbitraryServerRequest) (*entity.UserWorkspace, error) {
	if actorID != ownerID {
		return nil, apperr.AccessDenied("WORKSPACE_OWNER_REQUIRED", "only the workspace owner can change its database")
	}
	if _, err := database.Dialector(req.DatabaseURI); err != nil {
		return nil, apperr.Validation("INVALID_DATABASE_URI", "%v", err)
	}
	if s.router != nil {
		if err := s.router.Ping(ctx, req.DatabaseURI); err != nil {
			return nil, apperr.ArbitraryUnreachable(err)
		}
	}

	ws, err := s.repos.Workspace.FindByOwner(ctx, ownerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if ws == nil {
		ws = &entity.UserWorkspace{ID: uuid.New().String(), UserID: ownerID}
	}
	oldURI := ""
	if ws.UseArbitrary && ws.DatabaseURI != "" {
		oldURI, _ = s.unseal(ws.DatabaseURI)
	}

	sealedURI, err := s.seal(req.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("seal database uri: %w", err)
	}
	sealedSecret, err := s.seal(req.StorageSecretKey)
	if err != nil {
		return nil, fmt.Errorf("seal storage secret: %w", err)
	}
	ws.UseArbitrary = true
	ws.DatabaseURI = sealedURI
	ws.StorageType = req.StorageType
	ws.StorageURL = req.StorageURL
	ws.StorageRegion = req.StorageRegion
	ws.StorageBucket = req.StorageBucket
	ws.StorageAccessKey = req.StorageAccessKey
	ws.StorageSecretKey = sealedSecret
	if err := s.repos.Workspace.Save(ctx, ws); err != nil {
		return nil, err
	}

	if err := s.InvalidateOwner(ctx, ownerID); err != nil {
		s.logger.Warn("arbitrary cache invalidation failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
	if oldURI != "" && oldURI != req.DatabaseURI && s.router != nil {
		s.router.Evict(oldURI)
	}
	return ws, nil
}

// InvalidateOwner drops cached routes of every applet owned by the user.
func (s *WorkspaceService) InvalidateOwner(ctx context.Context, ownerID string) error {
	ids, err := s.repos.Access.AppletIDsByUser(ctx, ownerID, entity.RoleOwner)
	if err != nil {
		return err
	}
	return s.Invalidate(ctx, ids...)
}

// Invalidate drops cached routes of the given applets.
func (s *WorkspaceService) Invalidate(ctx context.Context, appletIDs ...string) error {
	if s.rdb == nil || len(appletIDs) == 0 {
		return nil
	}
	keys := make([]string, len(appletIDs))
	for i, id := range appletIDs {
		keys[i] = arbitraryCachePrefix + id
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// Workspace returns the owner's workspace settings.
func (s *WorkspaceService) Workspace(ctx context.Context, actorID, ownerID string) (*entity.UserWorkspace, error) {
	if actorID != ownerID {
		return nil, apperr.AccessDenied("WORKSPACE_OWNER_REQUIRED", "only the workspace owner can read its settings")
	}
	ws, err := s.repos.Workspace.FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &entity.UserWorkspace{UserID: ownerID}, nil
		}
		return nil, err
	}
	return ws, nil
}
