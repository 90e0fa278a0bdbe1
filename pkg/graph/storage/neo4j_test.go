package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/athapong/surgical-qa/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBounded_AbandonsStalledCall(t *testing.T) {
	t.Parallel()

	start := time.Now()
	err := runBounded(context.Background(), 20*time.Millisecond, func() error {
		select {}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrGraphUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunBounded_ReturnsCallOutcome(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("connection refused")
	err := runBounded(context.Background(), time.Second, func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	assert.NoError(t, runBounded(context.Background(), time.Second, func() error { return nil }))
}

func TestRunBounded_HonorsCallerCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runBounded(ctx, time.Second, func() error {
		select {}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrGraphUnavailable)
}
