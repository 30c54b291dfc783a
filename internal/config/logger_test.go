package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	cfg := &Config{Env: "local", Log: Log{Level: "debug"}}

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLogger_ProdLevel(t *testing.T) {
	cfg := &Config{Env: "prod", Log: Log{Level: "warn"}}

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := &Config{Env: "local", Log: Log{Level: "chatty"}}

	_, err := cfg.NewLogger()
	assert.Error(t, err)
}
