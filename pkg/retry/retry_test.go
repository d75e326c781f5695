package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDoSucceedsAfterRetries(t *testing.T) {
	n := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		n++
		if n < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDoExhausted(t *testing.T) {
	n := 0
	err := Do(context.Background(), Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, func(context.Context) error {
		n++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, n)
}

func TestDoFatalStopsImmediately(t *testing.T) {
	n := 0
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Classify: func(err error) Class {
			return Fatal
		},
	}
	err := Do(context.Background(), p, func(context.Context) error {
		n++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, n)
}

func TestDoPermanentStopsDefaultClassifier(t *testing.T) {
	n := 0
	err := Do(context.Background(), Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}, func(context.Context) error {
		n++
		return Permanent(errBoom)
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, n)
}

func TestPermanentMarker(t *testing.T) {
	assert.True(t, IsPermanent(Permanent(errBoom)))
	assert.True(t, IsPermanent(fmt.Errorf("wrapped: %w", Permanent(errBoom))))
	assert.False(t, IsPermanent(errBoom))
	assert.NoError(t, Permanent(nil))
}

func TestDoContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Policy{MaxAttempts: 3}, func(context.Context) error {
		return errBoom
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoneRunsOnce(t *testing.T) {
	n := 0
	err := Do(context.Background(), None(), func(context.Context) error {
		n++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, n)
}
