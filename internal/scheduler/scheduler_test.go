package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskWithRecover(t *testing.T) {
	s := &Scheduler{log: zerolog.Nop()}

	var calls int32
	task := s.taskWithRecover(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		assert.NotNil(t, zerolog.Ctx(ctx))
		return errors.New("boom")
	}, "failing")
	assert.NotPanics(t, func() { task(context.Background()) })

	panicking := s.taskWithRecover(func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		panic("bad")
	}, "panicking")
	assert.NotPanics(t, func() { panicking(context.Background()) })

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIntervalJobRunsImmediately(t *testing.T) {
	s, err := New(zerolog.Nop())
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	require.NoError(t, s.NewIntervalJob("reconcile", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, time.Hour, true))

	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
}
