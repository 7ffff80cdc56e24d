package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		ssl    bool
		host   string
		secure bool
	}{
		{"localhost:9000", false, "localhost:9000", false},
		{"minio.internal:9000", true, "minio.internal:9000", true},
		{"https://s3.amazonaws.com", false, "s3.amazonaws.com", true},
		{"http://minio:9000", true, "minio:9000", false},
	}
	for _, tt := range tests {
		host, secure, err := splitEndpoint(tt.in, tt.ssl)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.host, host)
		assert.Equal(t, tt.secure, secure)
	}

	_, _, err := splitEndpoint("", false)
	assert.Error(t, err)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Options{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	s, err := New(Options{Endpoint: "localhost:9000", Bucket: "exports", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.Equal(t, "exports", s.Bucket())
}

func TestPresignedURLIsLocal(t *testing.T) {
	s, err := New(Options{Endpoint: "localhost:9000", Region: "us-east-1", Bucket: "exports", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	u, err := s.PresignedURL(context.Background(), "schedule/x.xlsx", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://localhost:9000/exports/schedule/x.xlsx?"))
}

func TestExportKey(t *testing.T) {
	at := time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "schedule-history/2024-03-10/applet.xlsx", ExportKey("schedule-history", at, "applet.xlsx"))
}
