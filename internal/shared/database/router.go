package database

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router keeps one connection pool per database URI. Pools are opened on
// first use and migrated with the given models.
type Router struct {
	mu     sync.RWMutex
	pools  map[string]*gorm.DB
	opts   Options
	models []interface{}
	logger *zap.Logger
	openFn func(uri string, opts Options) (*gorm.DB, error)
}

func NewRouter(opts Options, logger *zap.Logger, models ...interface{}) *Router {
	return &Router{
		pools:  make(map[string]*gorm.DB),
		opts:   opts,
		models: models,
		logger: logger,
		openFn: Open,
	}
}

// Get returns the pool for uri, opening and migrating it when needed.
func (r *Router) Get(ctx context.Context, uri string) (*gorm.DB, error) {
	r.mu.RLock()
	db, ok := r.pools[uri]
	r.mu.RUnlock()
	if ok {
		return db, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.pools[uri]; ok {
		return db, nil
	}

	db, err := r.openFn(uri, r.opts)
	if err != nil {
		return nil, err
	}
	if len(r.models) > 0 {
		if err := db.WithContext(ctx).AutoMigrate(r.models...); err != nil {
			_ = Close(db)
			return nil, fmt.Errorf("migrate %s: %w", redact(uri), err)
		}
	}
	r.pools[uri] = db
	r.logger.Info("opened workspace database", zap.String("uri", redact(uri)))
	return db, nil
}

// Ping checks that uri is reachable without keeping the pool.
func (r *Router) Ping(ctx context.Context, uri string) error {
	db, err := r.openFn(uri, r.opts)
	if err != nil {
		return err
	}
	defer Close(db)
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Evict closes and forgets the pool of uri, e.g. after its settings changed.
func (r *Router) Evict(uri string) {
	r.mu.Lock()
	db, ok := r.pools[uri]
	delete(r.pools, uri)
	r.mu.Unlock()
	if ok {
		if err := Close(db); err != nil {
			r.logger.Warn("close workspace database", zap.Error(err))
		}
	}
}

// Close releases every pool.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uri, db := range r.pools {
		if err := Close(db); err != nil {
			r.logger.Warn("close workspace database", zap.String("uri", redact(uri)), zap.Error(err))
		}
		delete(r.pools, uri)
	}
}
