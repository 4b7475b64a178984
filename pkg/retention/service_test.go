package retention

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csml-run/csml-engine/pkg/store"
	"github.com/csml-run/csml-engine/pkg/store/memstore"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) DeleteExpiredData(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestServiceStartSweepsImmediatelyThenOnInterval(t *testing.T) {
	sweeper := &countingSweeper{}
	svc := New(sweeper, 10*time.Millisecond, slog.Default())

	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestServiceStopWaitsForLoopExit(t *testing.T) {
	sweeper := &countingSweeper{}
	svc := New(sweeper, time.Hour, slog.Default())

	svc.Start(context.Background())
	svc.Stop()

	callsAtStop := sweeper.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, callsAtStop, sweeper.calls.Load())
}

func TestServiceStartTwiceIsANoOp(t *testing.T) {
	sweeper := &countingSweeper{}
	svc := New(sweeper, time.Hour, slog.Default())

	svc.Start(context.Background())
	firstCancel := svc.cancel
	firstDone := svc.done
	svc.Start(context.Background())
	assert.Equal(t, firstDone, svc.done)
	svc.Stop()

	assert.NotNil(t, firstCancel)
}

func TestServiceDefaultsIntervalWhenZero(t *testing.T) {
	svc := New(&countingSweeper{}, 0, nil)
	assert.Equal(t, defaultInterval, svc.interval)
}

func TestServiceSweepsRealStore(t *testing.T) {
	s := memstore.New()
	client := store.Client{BotID: "bot1", ChannelID: "web", UserID: "user1"}
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := s.Conversations.Create(ctx, client, "main", "start", &past)
	require.NoError(t, err)

	svc := New(s.Facade().Sweeper, 0, nil)
	svc.sweepOnce(ctx)

	conv, err := s.Conversations.GetLatestOpen(ctx, client)
	require.NoError(t, err)
	assert.Nil(t, conv)
}
