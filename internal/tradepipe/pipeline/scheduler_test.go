package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerStartIsIdempotent(t *testing.T) {
	src := &fakeSource{head: 10}
	p := newTestPipeline(t, src, &fakeClassifier{}, nil, nil)
	s := NewScheduler(p, 10*time.Millisecond, nil)
	defer s.Stop()

	assert.True(t, s.Start(context.Background()))
	assert.False(t, s.Start(context.Background()), "second start reports already running")
	assert.True(t, s.Running())
}

func TestSchedulerDrivesPolls(t *testing.T) {
	src := &fakeSource{head: 10}
	p := newTestPipeline(t, src, &fakeClassifier{}, nil, nil)
	s := NewScheduler(p, 5*time.Millisecond, nil)

	require.True(t, s.Start(context.Background()))
	defer s.Stop()

	// cold start pins the cursor; subsequent ticks follow the head
	require.Eventually(t, func() bool { return p.Cursor() == 10 }, time.Second, time.Millisecond)

	src.mu.Lock()
	src.head = 12
	src.mu.Unlock()
	require.Eventually(t, func() bool { return p.Cursor() == 12 }, time.Second, time.Millisecond)
}

func TestSchedulerExternalCancelClearsRunning(t *testing.T) {
	src := &fakeSource{head: 10}
	p := newTestPipeline(t, src, &fakeClassifier{}, nil, nil)
	s := NewScheduler(p, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, s.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !s.Running() }, time.Second, time.Millisecond,
		"cancelled loop must not report as running")
	assert.True(t, s.Start(context.Background()), "restart after external cancel")
	s.Stop()
}

func TestSchedulerStopWaitsAndRestarts(t *testing.T) {
	src := &fakeSource{head: 10}
	p := newTestPipeline(t, src, &fakeClassifier{}, nil, nil)
	s := NewScheduler(p, 5*time.Millisecond, nil)

	require.True(t, s.Start(context.Background()))
	s.Stop()
	assert.False(t, s.Running())
	s.Stop() // stopping again is a no-op

	assert.True(t, s.Start(context.Background()), "restart after stop")
	s.Stop()
}
