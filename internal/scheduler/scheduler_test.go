package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(context.Background(), RunnerFunc(func(context.Context) error { return nil }))
	assert.Error(t, s.Register("every saturday"))
	require.NoError(t, s.Register("0 0 7 * * 6"))
	assert.Len(t, s.Cron.Entries(), 1)
}

func TestRunWeeklyNow(t *testing.T) {
	var calls int32
	s := NewScheduler(context.Background(), RunnerFunc(func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("no ticker scored completely")
	}))
	s.RunWeeklyNow()
	s.RunWeeklyNow()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "errors are logged, not fatal")
}

func TestWeeklyTask_SkipsOverlappingRuns(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewScheduler(context.Background(), RunnerFunc(func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return nil
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunWeeklyNow()
	}()
	<-started
	s.RunWeeklyNow()
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWeeklyTask_SkipsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	s := NewScheduler(ctx, RunnerFunc(func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	s.RunWeeklyNow()
	assert.Zero(t, atomic.LoadInt32(&calls))
}
