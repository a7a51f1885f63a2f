package signalhandler

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimalProcs(t *testing.T) {
	tests := []struct {
		cpus int
		want int
	}{
		{cpus: 1, want: 1},
		{cpus: 2, want: 1},
		{cpus: 4, want: 3},
		{cpus: 16, want: 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, optimalProcs(tt.cpus), "cpus=%d", tt.cpus)
	}
	assert.GreaterOrEqual(t, GetOptimalProcs(), 1)
}

func TestNotifyContext_Signal(t *testing.T) {
	ctx, stop := NotifyContext(context.Background())
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
}

func TestNotifyContext_Stop(t *testing.T) {
	ctx, stop := NotifyContext(context.Background())
	stop()
	assert.Error(t, ctx.Err())
}
