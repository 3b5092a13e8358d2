package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePurger struct {
	n     int
	err   error
	calls atomic.Int32
}

func (p *fakePurger) PurgeRevoked(context.Context) (int, error) {
	p.calls.Add(1)
	return p.n, p.err
}

func TestAdd_RejectsBadSpec(t *testing.T) {
	s := New(zap.NewNop())
	assert.Error(t, s.Add("broken", "not a spec", func(context.Context) error { return nil }))
	assert.NoError(t, s.Add("purge", "@hourly", func(context.Context) error { return nil }))
}

func TestRun_ExecutesJobsUntilCancelled(t *testing.T) {
	s := New(zap.NewNop())
	var runs atomic.Int32
	require.NoError(t, s.Add("tick", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunJob_LogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	s := New(zap.New(core))

	p := &fakePurger{err: errors.New("store down")}
	s.runJob("purge-revoked", PurgeRevokedJob(p, zap.New(core)))

	assert.Equal(t, int32(1), p.calls.Load())
	entries := logs.FilterMessage("job failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "purge-revoked", entries[0].ContextMap()["job"])
}

func TestPurgeRevokedJob_LogsCount(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	job := PurgeRevokedJob(&fakePurger{n: 3}, zap.New(core))

	require.NoError(t, job(context.Background()))
	entries := logs.FilterMessage("purged revoked tokens").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].ContextMap()["count"])

	require.NoError(t, PurgeRevokedJob(&fakePurger{}, zap.New(core))(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("purged revoked tokens").Len(), "nothing purged, nothing logged")
}
