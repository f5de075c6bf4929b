package apm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbguard/internal/logger"
)

func TestNewTraceProvider_EmptyAndUnknown(t *testing.T) {
	ctx := context.Background()

	tp, err := NewTraceProvider(ctx, logger.NewNop(), Options{Provider: EmptyProvider})
	require.NoError(t, err)
	assert.NoError(t, tp.Stop())

	tp, err = NewTraceProvider(ctx, logger.NewNop(), Options{Provider: "jaeger"})
	require.NoError(t, err)
	assert.IsType(t, emptyProvider{}, tp)
}

func TestNewTraceProvider_Console(t *testing.T) {
	tp, err := NewTraceProvider(context.Background(), logger.NewNop(), Options{
		Provider:    ConsoleProvider,
		ServiceName: "arbguard-test",
	})
	require.NoError(t, err)
	assert.NoError(t, tp.Stop())
}
