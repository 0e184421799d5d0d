package correlator

import (
    "context"
    "runtime"
    "testing"
    "time"

    "github.com/jellydator/ttlcache/v3"
    "github.com/jonboulle/clockwork"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "hostbridge/pkg/protocol"
)

// A deadline callback that was already in flight when the response won must
// not touch the settled call.
func TestExpireAfterSettlementIsNoop(t *testing.T) {
    clock := clockwork.NewFakeClock()
    m := NewMetrics(prometheus.NewRegistry())
    c := New(SenderFunc(func(protocol.Envelope) error { return nil }), WithClock(clock), WithMetrics(m))
    defer c.Close()

    call, err := c.Request(context.Background(), "ping", nil, 100*time.Millisecond)
    require.NoError(t, err)
    clock.Advance(10 * time.Millisecond)
    c.HandleInbound(protocol.NewResponse(call.ID(), "pong", clock.Now()))

    c.expire(call.ID(), "ping", 100*time.Millisecond)
    val, err := call.Result()
    require.NoError(t, err)
    assert.Equal(t, "pong", val)
    assert.Equal(t, 0.0, testutil.ToFloat64(m.Settled.WithLabelValues(outcomeTimeout)))
}

func TestCallSettlesOnce(t *testing.T) {
    call := newCall(1, "ping")
    assert.True(t, call.settle("a", nil))
    assert.False(t, call.settle("b", nil))
    val, err := call.Result()
    require.NoError(t, err)
    assert.Equal(t, "a", val)
}

func TestFailureMessage(t *testing.T) {
    assert.Equal(t, protocol.DefaultFailureMessage, failureMessage(nil))
    assert.Equal(t, protocol.DefaultFailureMessage, failureMessage(""))
    assert.Equal(t, protocol.DefaultFailureMessage, failureMessage(map[string]any{}))
    assert.Equal(t, "boom", failureMessage("boom"))
    assert.Equal(t, "no layer", failureMessage(map[string]any{"error": "no layer"}))
    assert.Equal(t, `{"code":7}`, failureMessage(map[string]any{"code": 7}))
    assert.Equal(t, "[1,2]", failureMessage([]int{1, 2}))
}

func TestNewStartsNoBackgroundWork(t *testing.T) {
    before := runtime.NumGoroutine()
    for i := 0; i < 50; i++ {
        _ = New(SenderFunc(func(protocol.Envelope) error { return nil }), WithMetrics(NewMetrics(prometheus.NewRegistry())))
    }
    assert.Less(t, runtime.NumGoroutine()-before, 10)
}

func TestExpiredTombstonesSweptOnSettlement(t *testing.T) {
    clock := clockwork.NewFakeClock()
    c := New(SenderFunc(func(protocol.Envelope) error { return nil }),
        WithClock(clock), WithMetrics(NewMetrics(prometheus.NewRegistry())), WithLateWindow(100*time.Millisecond))
    defer c.Close()
    evicted := make(chan uint64, 4)
    c.settled.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[uint64, string]) {
        if reason == ttlcache.EvictionReasonExpired { evicted <- item.Key() }
    })

    first, err := c.Request(context.Background(), "ping", nil, time.Second)
    require.NoError(t, err)
    c.HandleInbound(protocol.NewResponse(first.ID(), "pong", clock.Now()))
    assert.True(t, c.wasSettled(first.ID()))

    // the window runs on the wall clock
    time.Sleep(150 * time.Millisecond)
    assert.False(t, c.wasSettled(first.ID()))

    second, err := c.Request(context.Background(), "ping", nil, time.Second)
    require.NoError(t, err)
    c.HandleInbound(protocol.NewResponse(second.ID(), "pong", clock.Now()))
    select {
    case id := <-evicted:
        assert.Equal(t, first.ID(), id)
    case <-time.After(2 * time.Second):
        t.Fatalf("expired tombstone not swept")
    }
    assert.True(t, c.wasSettled(second.ID()))
}
