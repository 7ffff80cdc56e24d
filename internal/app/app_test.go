package app

import (
	"testing"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm/logger"
)

func TestInitLoggerLevel(t *testing.T) {
	tests := []struct {
		cfg  config.LogConfig
		want zapcore.Level
	}{
		{config.LogConfig{Level: "debug"}, zapcore.DebugLevel},
		{config.LogConfig{Level: "warn", Format: "json"}, zapcore.WarnLevel},
		{config.LogConfig{Level: "error"}, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		l, err := InitLogger(tt.cfg)
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(tt.want))
		assert.False(t, l.Core().Enabled(tt.want-1), "level %s", tt.cfg.Level)
	}
}

func TestPoolOptions(t *testing.T) {
	cfg := config.DatabaseConfig{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: time.Minute}

	opts := poolOptions(cfg, "release")
	assert.Equal(t, 25, opts.MaxOpenConns)
	assert.Equal(t, 5, opts.MaxIdleConns)
	assert.Equal(t, time.Minute, opts.ConnMaxLifetime)
	assert.Equal(t, logger.Warn, opts.LogLevel)

	assert.Equal(t, logger.Info, poolOptions(cfg, "debug").LogLevel)
}
