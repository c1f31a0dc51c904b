package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestContextWaitFirstAttemptIsImmediate(t *testing.T) {
	wait := ContextWait(context.Background(), time.Hour)

	start := time.Now()
	require.True(t, wait(0))
	require.Less(t, time.Since(start), time.Second)
}

func TestContextWaitSleepsBetweenAttempts(t *testing.T) {
	wait := ContextWait(context.Background(), 20*time.Millisecond)

	start := time.Now()
	require.True(t, wait(1))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestContextWaitStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, ContextWait(ctx, time.Hour)(0))
}

func TestContextWaitWakesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	require.False(t, ContextWait(ctx, time.Hour)(1))
	require.Less(t, time.Since(start), 5*time.Second)
}
