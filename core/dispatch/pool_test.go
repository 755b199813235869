package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkcoursebot/core/longpoll"
)

func TestPoolKeepsPerUserOrder(t *testing.T) {
	var mu sync.Mutex
	seen := map[int64][]int64{}

	pool, err := NewPool(3, 8, func(ctx context.Context, msg Message) error {
		mu.Lock()
		seen[msg.UserID] = append(seen[msg.UserID], msg.Payload.CoursePK)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	pool.Start(context.Background())

	ctx := context.Background()
	for seq := int64(1); seq <= 20; seq++ {
		for _, userID := range []int64{42, 43, 44} {
			msg := Message{UserID: userID, Payload: Payload{CoursePK: seq}}
			require.NoError(t, pool.Submit(ctx, msg))
		}
	}
	pool.Close()

	for _, userID := range []int64{42, 43, 44} {
		require.Len(t, seen[userID], 20)
		for i, got := range seen[userID] {
			assert.Equal(t, int64(i+1), got, "user %d out of order", userID)
		}
	}
	assert.Equal(t, uint64(60), pool.Stats().Dispatched)
}

func TestPoolCountsFailures(t *testing.T) {
	pool, err := NewPool(1, 4, func(ctx context.Context, msg Message) error {
		if msg.Payload.CoursePK%2 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	pool.Start(context.Background())

	ctx := context.Background()
	for seq := int64(1); seq <= 4; seq++ {
		require.NoError(t, pool.Submit(ctx, Message{UserID: 42, Payload: Payload{CoursePK: seq}}))
	}
	pool.Close()

	stats := pool.Stats()
	assert.Equal(t, uint64(2), stats.Dispatched)
	assert.Equal(t, uint64(2), stats.Failed)
}

func TestPoolSubmitHonoursCancelledContext(t *testing.T) {
	pool, err := NewPool(1, 1, func(ctx context.Context, msg Message) error { return nil })
	require.NoError(t, err)
	// workers never started, so the shard fills up

	ctx := context.Background()
	require.NoError(t, pool.Submit(ctx, Message{UserID: 42}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = pool.Submit(cancelled, Message{UserID: 42})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPoolCloseDrainsQueuedEventsAndIsIdempotent(t *testing.T) {
	var mu sync.Mutex
	processed := 0
	pool, err := NewPool(2, 16, func(ctx context.Context, msg Message) error {
		mu.Lock()
		processed++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	pool.Start(context.Background())

	ctx := context.Background()
	for seq := int64(1); seq <= 10; seq++ {
		require.NoError(t, pool.Submit(ctx, Message{UserID: seq}))
	}
	pool.Close()
	pool.Close() // second Close must be a no-op, not a double channel close

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, processed, "Close must drain already-queued events")
}

func TestSinkDecodesAndQueues(t *testing.T) {
	f := newFixture(t)
	pool, err := NewPool(1, 4, f.dispatcher.Process)
	require.NoError(t, err)
	pool.Start(context.Background())

	sink := f.dispatcher.Sink(pool)
	update := longpoll.Update{
		Type:   "message_new",
		Object: json.RawMessage(`{"message":{"from_id":42,"text":"начать"}}`),
	}
	require.NoError(t, sink(context.Background(), update))
	pool.Close()

	assert.Len(t, f.sender.replies(), 1)
	assert.Equal(t, "MAIN_MENU", f.state(t, 42))
}

func TestSinkRejectsUndecodableEvent(t *testing.T) {
	f := newFixture(t)
	pool, err := NewPool(1, 4, f.dispatcher.Process)
	require.NoError(t, err)
	pool.Start(context.Background())
	defer pool.Close()

	sink := f.dispatcher.Sink(pool)
	err = sink(context.Background(), longpoll.Update{Type: "message_new", Object: json.RawMessage(`{}`)})
	require.Error(t, err)
}
