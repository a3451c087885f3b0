package scheduler

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/momentsapp/moments/internal/logger"
	"github.com/momentsapp/moments/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBackfill struct {
	runs chan *service.BackfillOptions
}

func (c *countingBackfill) Run(ctx context.Context, opts *service.BackfillOptions) (*service.BackfillStats, error) {
	c.runs <- opts
	return &service.BackfillStats{}, nil
}

func TestScheduler_AddJob(t *testing.T) {
	s := New()

	require.NoError(t, s.AddJob("a", "@every 1h", func(ctx context.Context) {}))
	assert.Error(t, s.AddJob("a", "@every 1h", func(ctx context.Context) {}))
	assert.Error(t, s.AddJob("b", "not a schedule", func(ctx context.Context) {}))
	assert.Equal(t, []string{"a"}, s.Jobs())
}

func TestScheduler_RunsBackfill(t *testing.T) {
	s := New()
	backfill := &countingBackfill{runs: make(chan *service.BackfillOptions, 4)}
	require.NoError(t, s.AddBackfillJob("@every 1s", 25, backfill))

	s.Start()
	defer s.Stop()

	select {
	case opts := <-backfill.runs:
		assert.Equal(t, 25, opts.Limit)
	case <-time.After(3 * time.Second):
		t.Fatal("backfill job did not run")
	}
}

type busyBackfill struct{}

func (busyBackfill) Run(ctx context.Context, opts *service.BackfillOptions) (*service.BackfillStats, error) {
	return nil, service.ErrBackfillRunning
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestScheduler_SkipsBackfillWhileRunning(t *testing.T) {
	out := &syncBuffer{}
	previous := logger.GetDefault()
	logger.SetDefaultLogger(logger.New(&logger.Config{Level: "info", Format: "json", Output: out, ServiceName: "test"}))
	t.Cleanup(func() { logger.SetDefaultLogger(previous) })

	s := New()
	require.NoError(t, s.AddBackfillJob("@every 1s", 10, busyBackfill{}))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"status":"skipped"`)
	}, 3*time.Second, 20*time.Millisecond)
	assert.NotContains(t, out.String(), "Scheduled backfill failed")
}
