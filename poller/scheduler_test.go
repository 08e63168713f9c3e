package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestStartRunsImmediatelyAndRepeats(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Shutdown()

	var runs int32
	key := Key{Session: "s1", View: "products", Purpose: "jobs"}
	s.Start(context.Background(), key, 20*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&runs, 1)
	})

	waitFor(t, func() bool { return atomic.LoadInt32(&runs) >= 1 })
	waitFor(t, func() bool { return atomic.LoadInt32(&runs) >= 3 })
	assert.True(t, s.Running(key))
}

func TestStopCancelsTask(t *testing.T) {
	s := New(zap.NewNop())

	var runs int32
	key := Key{Session: "s1", View: "detail", Purpose: "status"}
	taskCtx := s.Start(context.Background(), key, 10*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&runs, 1)
	})
	waitFor(t, func() bool { return atomic.LoadInt32(&runs) >= 1 })

	s.Stop(key)
	assert.Error(t, taskCtx.Err())
	assert.False(t, s.Running(key))

	after := atomic.LoadInt32(&runs)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&runs), "no polls after stop")
}

func TestParentCancelEndsTask(t *testing.T) {
	s := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	key := Key{Session: "s1", View: "products", Purpose: "jobs"}

	s.Start(ctx, key, time.Hour, func(context.Context) {})
	cancel()
	waitFor(t, func() bool { return !s.Running(key) })
}

func TestTasksAreIndependent(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Shutdown()

	jobs := Key{Session: "s1", View: "products", Purpose: "jobs"}
	status := Key{Session: "s1", View: "detail", Purpose: "status"}
	other := Key{Session: "s2", View: "products", Purpose: "jobs"}
	for _, k := range []Key{jobs, status, other} {
		s.Start(context.Background(), k, time.Hour, func(context.Context) {})
	}
	assert.Equal(t, 3, s.Len())

	s.Stop(jobs)
	assert.True(t, s.Running(status))

	s.StopSession("s1")
	assert.False(t, s.Running(status))
	assert.True(t, s.Running(other))
}

func TestStartReplacesExistingTask(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Shutdown()

	key := Key{Session: "s1", View: "products", Purpose: "jobs"}
	first := s.Start(context.Background(), key, time.Hour, func(context.Context) {})
	second := s.Start(context.Background(), key, time.Hour, func(context.Context) {})

	assert.Error(t, first.Err())
	assert.NoError(t, second.Err())
	assert.Equal(t, 1, s.Len())
}

func TestTriggerAfterForcesRecheck(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Shutdown()

	var runs int32
	key := Key{Session: "s1", View: "detail", Purpose: "status"}
	s.Start(context.Background(), key, time.Hour, func(context.Context) {
		atomic.AddInt32(&runs, 1)
	})
	waitFor(t, func() bool { return atomic.LoadInt32(&runs) == 1 })

	s.TriggerAfter(key, 10*time.Millisecond)
	waitFor(t, func() bool { return atomic.LoadInt32(&runs) == 2 })

	assert.False(t, s.Trigger(Key{Session: "nobody"}))
}

func TestPanickingTaskKeepsPolling(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Shutdown()

	var runs int32
	key := Key{Session: "s1", View: "products", Purpose: "jobs"}
	s.Start(context.Background(), key, 10*time.Millisecond, func(context.Context) {
		if atomic.AddInt32(&runs, 1) == 1 {
			panic("boom")
		}
	})
	waitFor(t, func() bool { return atomic.LoadInt32(&runs) >= 2 })
}

func TestTabsOfOneViewRunSideBySide(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Shutdown()

	var a, b, other int32
	tabA := Key{Session: "s1", View: "products:b1", Purpose: "jobs", Tab: "a"}
	tabB := tabA
	tabB.Tab = "b"
	startA := s.Start(context.Background(), tabA, time.Hour, func(context.Context) { atomic.AddInt32(&a, 1) })
	s.Start(context.Background(), tabB, time.Hour, func(context.Context) { atomic.AddInt32(&b, 1) })
	s.Start(context.Background(), Key{Session: "s1", View: "products:b2", Purpose: "jobs", Tab: "a"}, time.Hour,
		func(context.Context) { atomic.AddInt32(&other, 1) })
	waitFor(t, func() bool { return atomic.LoadInt32(&a) == 1 && atomic.LoadInt32(&b) == 1 })
	assert.NoError(t, startA.Err(), "second tab does not replace the first")

	assert.Equal(t, 2, s.TriggerView(Key{Session: "s1", View: "products:b1", Purpose: "jobs"}))
	waitFor(t, func() bool { return atomic.LoadInt32(&a) == 2 && atomic.LoadInt32(&b) == 2 })
	assert.Equal(t, int32(1), atomic.LoadInt32(&other))
}
