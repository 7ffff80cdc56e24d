// Package app wires the shared infrastructure used by the API server and
// the background worker.
package app

import (
	"context"
	"fmt"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/config"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/repository"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/crypto"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/database"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/mailer"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/push"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/queue"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// JobQueue is the redis queue shared by the server and the worker.
const JobQueue = "jobs"

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *gorm.DB
	Redis    *redis.Client
	Router   *database.Router
	Hub      *push.Hub
	Queue    *queue.Queue
	Storage  *storage.Storage
	Services *service.Services
}

func InitLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func InitRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func poolOptions(cfg config.DatabaseConfig, mode string) database.Options {
	level := logger.Warn
	if mode == "debug" {
		level = logger.Info
	}
	return database.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		LogLevel:        level,
	}
}

// New connects every backing service and builds the service layer. Optional
// integrations (push gateway, mail, object storage) stay off when their
// config is empty.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	opts := poolOptions(cfg.Database, cfg.Server.Mode)
	db, err := database.Open(cfg.Database.DSN(), opts)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(entity.Models()...); err != nil {
		return nil, fmt.Errorf("migrate default database: %w", err)
	}

	rdb := InitRedis(cfg.Redis)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unavailable, arbitrary routes and jobs will fail", zap.Error(err))
	}

	box, err := crypto.NewSecretBox(cfg.Secrets.Key)
	if err != nil {
		return nil, err
	}

	hub := push.NewHub(log)
	notifiers := []push.Notifier{hub}
	if cfg.Push.BaseURL != "" {
		notifiers = append(notifiers, push.NewClient(cfg.Push.BaseURL, cfg.Push.AppID, cfg.Push.AppSecret, cfg.Push.Timeout))
	}

	mail, err := mailer.New(ctx, cfg.Mail.Region, cfg.Mail.FromEmail, cfg.Mail.FromName, log)
	if err != nil {
		return nil, err
	}

	var store *storage.Storage
	if cfg.MinIO.Endpoint != "" {
		store, err = storage.New(storage.Options{
			Endpoint:  cfg.MinIO.Endpoint,
			Bucket:    cfg.MinIO.Bucket,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, err
		}
	}

	router := database.NewRouter(opts, log, entity.AnswerModels()...)
	q := queue.New(rdb, JobQueue)

	a := &App{
		Config:  cfg,
		Logger:  log,
		DB:      db,
		Redis:   rdb,
		Router:  router,
		Hub:     hub,
		Queue:   q,
		Storage: store,
	}
	a.Services = service.NewServices(service.Deps{
		Repos:    repository.NewRepositories(db),
		Router:   router,
		Redis:    rdb,
		Box:      box,
		Notifier: push.NewMulti(log, notifiers...),
		Mailer:   mail,
		Queue:    q,
		Storage:  store,
		Config:   cfg,
		Logger:   log,
	})
	return a, nil
}

// Ready reports whether the default database and redis answer.
func (a *App) Ready(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (a *App) Close() {
	a.Router.Close()
	if err := a.Redis.Close(); err != nil {
		a.Logger.Warn("Failed to close redis", zap.Error(err))
	}
	if err := database.Close(a.DB); err != nil {
		a.Logger.Warn("Failed to close database", zap.Error(err))
	}
}
