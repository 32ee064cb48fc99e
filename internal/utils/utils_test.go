package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"escpos-service/internal/config"
)

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "service.log")

	logger, err := NewLogger(&config.LoggingConfig{
		Level:    "debug",
		Format:   "json",
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	})
	require.NoError(t, err)

	logger.Info("hello", zap.String("session_id", "abc"))
	require.NoError(t, CloseLogger(logger))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "abc", entry["session_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLoggerErrors(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Level: "loud", Output: "stdout"})
	assert.ErrorContains(t, err, "invalid log level")

	_, err = NewLogger(&config.LoggingConfig{Level: "info", Output: "syslog"})
	assert.ErrorContains(t, err, "unsupported log output")
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level)

	level, err = ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)
}

func TestSessionLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sl := NewSessionLogger(zap.New(core), "s-1", "10.0.0.5:4242")

	sl.Start()
	sl.Finish(128, zap.String("decoder_status", "success"))
	sl.Failed(errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "Session started", entries[0].Message)
	assert.Equal(t, "s-1", entries[0].ContextMap()["session_id"])
	assert.Equal(t, "10.0.0.5:4242", entries[0].ContextMap()["remote_addr"])
	assert.Equal(t, int64(128), entries[1].ContextMap()["bytes"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "s-1", sl.SessionID())
}

func TestServiceLoggerRequestLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sl := NewServiceLogger(zap.New(core), "http")

	sl.LogAPIRequest("GET", "/health", "curl", "127.0.0.1", "r1", 200, 0)
	sl.LogAPIRequest("GET", "/missing", "curl", "127.0.0.1", "r2", 404, 0)
	sl.LogAPIRequest("POST", "/boom", "curl", "127.0.0.1", "r3", 500, 0)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "http", entries[0].ContextMap()["service"])
}

func TestResponses(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(RequestIDKey, "req-1")
	ErrorResponse(c, http.StatusRequestEntityTooLarge, "Job too large", errors.New("limit 10"))

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "req-1", resp.RequestID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", resp.Error.Code)
	assert.Equal(t, "limit 10", resp.Error.Details)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	SuccessResponse(c, http.StatusOK, "ok", NewPaginatedData([]int{1, 2}, 5, 1, 2))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Empty(t, resp.RequestID)
	assert.Equal(t, float64(3), resp.Data.(map[string]interface{})["total_pages"])
}
