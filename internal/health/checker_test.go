package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type flakyProbe struct {
	fail atomic.Bool
}

func (p *flakyProbe) probe(context.Context) error {
	if p.fail.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestCheckAll_degradesAfterThreshold(t *testing.T) {
	c := New(Config{FailThreshold: 3}, zap.NewNop())
	db := &flakyProbe{}
	c.Register("postgres", true, db.probe)

	db.fail.Store(true)
	c.CheckAll(context.Background())
	c.CheckAll(context.Background())
	assert.True(t, c.Healthy(), "below threshold")

	c.CheckAll(context.Background())
	assert.False(t, c.Healthy())

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 3, snap[0].Failures)
	assert.Equal(t, "connection refused", snap[0].LastError)

	db.fail.Store(false)
	c.CheckAll(context.Background())
	assert.True(t, c.Healthy())
	assert.Zero(t, c.Snapshot()[0].Failures)
}

func TestHealthy_ignoresNonCriticalDependencies(t *testing.T) {
	c := New(Config{FailThreshold: 1}, zap.NewNop())
	c.Register("postgres", true, func(context.Context) error { return nil })
	c.Register("redis", false, func(context.Context) error { return errors.New("down") })

	c.CheckAll(context.Background())
	assert.True(t, c.Healthy())

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "postgres", snap[0].Name)
	assert.False(t, snap[1].Healthy)
}

func TestCheckAll_probeTimeout(t *testing.T) {
	c := New(Config{FailThreshold: 1, ProbeTimeout: 10 * time.Millisecond}, zap.NewNop())
	c.Register("slow", true, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	c.CheckAll(context.Background())
	assert.False(t, c.Healthy())
	assert.Contains(t, c.Snapshot()[0].LastError, "deadline")
}

func TestCheckAll_recordsMetrics(t *testing.T) {
	c := New(Config{}, zap.NewNop())
	c.Register("a", true, func(context.Context) error { return nil })
	c.Register("b", true, func(context.Context) error { return errors.New("x") })

	var mu sync.Mutex
	got := map[string]bool{}
	c.SetMetricsRecord(func(dep string, ok bool) {
		mu.Lock()
		got[dep] = ok
		mu.Unlock()
	})

	c.CheckAll(context.Background())
	assert.Equal(t, map[string]bool{"a": true, "b": false}, got)
}

func TestRun_stopsOnCancel(t *testing.T) {
	c := New(Config{CheckInterval: time.Millisecond}, zap.NewNop())
	var calls atomic.Int32
	c.Register("a", true, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
