package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
)

// consumeN runs Consume until handler has been called n times.
func consumeN(t *testing.T, q *Queue, tag string, n int, handler Handler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	calls := 0
	err := q.Consume(ctx, tag, func(ctx context.Context, d Delivery) {
		handler(ctx, d)
		calls++
		if calls == n {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled, "consumer timed out after %d of %d deliveries", calls, n)
}

func newTestQueue(t *testing.T, opts ...QueueOption) *Queue {
	t.Helper()
	opts = append([]QueueOption{WithPollInterval(5 * time.Millisecond)}, opts...)
	return NewQueue(openStore(t), ScenarioQueue, opts...)
}

func TestQueue_PublishConsumeAck(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Publish(ctx, []byte(fmt.Sprintf("m%d", i))))
	}

	var got []string
	consumeN(t, q, "c1", 3, func(_ context.Context, d Delivery) {
		got = append(got, string(d.Body()))
		assert.False(t, d.Redelivered())
		require.NoError(t, d.Ack())
	})

	assert.Equal(t, []string{"m0", "m1", "m2"}, got)
	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth.Ready+depth.Leased)
}

func TestQueue_PrefetchOne(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Publish(ctx, []byte("x")))
	}

	consumeN(t, q, "c1", 4, func(ctx context.Context, d Delivery) {
		depth, err := q.Depth(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), depth.Leased, "exactly one delivery in flight")
		require.NoError(t, d.Ack())
	})
}

func TestQueue_RequeueRedelivers(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Publish(context.Background(), []byte("again")))

	var redelivered []bool
	consumeN(t, q, "c1", 2, func(_ context.Context, d Delivery) {
		redelivered = append(redelivered, d.Redelivered())
		if len(redelivered) == 1 {
			require.NoError(t, d.Requeue())
			return
		}
		require.NoError(t, d.Ack())
	})

	assert.Equal(t, []bool{false, true}, redelivered)
}

func TestQueue_DropDeadLetters(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, []byte("{not json")))
	require.NoError(t, q.Publish(ctx, []byte("ok")))

	var bodies []string
	consumeN(t, q, "c1", 2, func(_ context.Context, d Delivery) {
		bodies = append(bodies, string(d.Body()))
		if string(d.Body()) == "ok" {
			require.NoError(t, d.Ack())
			return
		}
		require.NoError(t, d.Drop("decode scenario: invalid json"))
	})
	assert.Equal(t, []string{"{not json", "ok"}, bodies)

	letters, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "{not json", string(letters[0].Body))
	assert.Equal(t, "decode scenario: invalid json", letters[0].Reason)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth.Dead)
	assert.Equal(t, int64(0), depth.Ready)
}

func TestQueue_SecondSettlementRejected(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Publish(context.Background(), []byte("x")))

	consumeN(t, q, "c1", 1, func(_ context.Context, d Delivery) {
		require.NoError(t, d.Ack())
		assert.ErrorIs(t, d.Ack(), ErrAlreadySettled)
		assert.ErrorIs(t, d.Requeue(), ErrAlreadySettled)
		assert.ErrorIs(t, d.Drop("late"), ErrAlreadySettled)
	})
}

func TestQueue_UnsettledIsRequeued(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Publish(context.Background(), []byte("x")))

	calls := 0
	consumeN(t, q, "c1", 2, func(_ context.Context, d Delivery) {
		calls++
		if calls == 2 {
			assert.True(t, d.Redelivered())
			require.NoError(t, d.Ack())
		}
	})
}

func TestQueue_SettlementAfterCancel(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Publish(context.Background(), []byte("x")))

	ctx, cancel := context.WithCancel(context.Background())
	err := q.Consume(ctx, "c1", func(ctx context.Context, d Delivery) {
		cancel()
		require.Error(t, ctx.Err())
		require.NoError(t, d.Ack(), "in-flight delivery settles after cancel")
	})
	require.ErrorIs(t, err, context.Canceled)

	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth.Ready+depth.Leased)
}

func TestQueue_ConsumeStopsOnCancel(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, "c1", func(context.Context, Delivery) {
			t.Error("no delivery expected")
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Consume did not return after cancel")
	}
}

func TestQueue_CompetingConsumers(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	const n = 60
	for i := 0; i < n; i++ {
		require.NoError(t, q.Publish(ctx, []byte(fmt.Sprintf("m%03d", i))))
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for c := 0; c < 3; c++ {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			_ = q.Consume(cctx, tag, func(_ context.Context, d Delivery) {
				mu.Lock()
				seen[string(d.Body())]++
				total := len(seen)
				mu.Unlock()
				assert.NoError(t, d.Ack())
				if total == n {
					cancel()
				}
			})
		}(fmt.Sprintf("c%d", c))
	}
	wg.Wait()

	require.Len(t, seen, n)
	for body, count := range seen {
		assert.Equal(t, 1, count, "%s delivered more than once", body)
	}
}

func TestQueue_TypedPublish(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	sc := domain.Scenario{ID: "m1_000000", ModelID: "m1", Parameters: map[string]float64{"x": 2}}
	require.NoError(t, q.PublishScenario(ctx, sc))

	consumeN(t, q, "c1", 1, func(_ context.Context, d Delivery) {
		got, err := domain.DecodeScenario(d.Body())
		require.NoError(t, err)
		assert.Equal(t, sc, got)
		require.NoError(t, d.Ack())
	})
}

func TestQueue_PublishErrorCarriesChannel(t *testing.T) {
	s := openStore(t)
	q := NewQueue(s, ResultQueue)
	require.NoError(t, s.Close())

	err := q.PublishResult(context.Background(), domain.Result{ScenarioID: "m1_000000", ModelID: "m1", Value: 4, WorkerID: "w"})
	require.Error(t, err)

	var pe *domain.PublishError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ResultQueue, pe.Channel)
}
