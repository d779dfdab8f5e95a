package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerIsDevelopmentOnlyForDev(t *testing.T) {
	assert.True(t, newLogger("dev").Core().Enabled(zapcore.DebugLevel))
	for _, env := range []string{"", "prod", "staging"} {
		assert.False(t, newLogger(env).Core().Enabled(zapcore.DebugLevel), "APP_ENV=%q", env)
	}
}
