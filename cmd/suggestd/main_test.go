package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestBuildLoggerHonorsConfiguredLevel(t *testing.T) {
	logger, err := buildLogger("warn")
	require.NoError(t, err)
	defer logger.Sync()
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = buildLogger("nonsense")
	assert.Error(t, err)
}
