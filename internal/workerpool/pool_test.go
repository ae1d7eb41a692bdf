package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := New(2, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	var count int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func(context.Context) { atomic.AddInt32(&count, 1) }))
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&count) == 10 }, time.Second, time.Millisecond)
}

func TestPool_SubmitAfterStopFails(t *testing.T) {
	p := New(1, 1)
	ctx := context.Background()
	p.Start(ctx)
	p.Stop()

	err := p.Submit(func(context.Context) {})
	assert.Error(t, err)
}

func TestPool_ZeroSizeDefaultsToOne(t *testing.T) {
	p := New(0, 1)
	assert.Equal(t, 1, p.size)
}
