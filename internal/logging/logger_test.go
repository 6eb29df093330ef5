// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	l, err := New("dev", "debug")
	require.NoError(t, err)
	assert.True(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel))

	l, err = New("prod", "")
	require.NoError(t, err)
	assert.False(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.SugaredLogger.Desugar().Core().Enabled(zapcore.InfoLevel))

	_, err = New("dev", "loud")
	assert.Error(t, err)
}

func TestWith_CarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).With("step", "summarize")

	l.Info("processing entry", "id", 7)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "processing entry", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "summarize", fields["step"])
	assert.EqualValues(t, 7, fields["id"])
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := Nop()
	assert.Same(t, l, OrNop(l))
}
