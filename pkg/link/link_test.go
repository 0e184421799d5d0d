package link_test

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "testing"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "hostbridge/pkg/correlator"
    "hostbridge/pkg/link"
    "hostbridge/pkg/notify"
    "hostbridge/pkg/protocol"
    "hostbridge/pkg/transport"
    "hostbridge/pkg/transport/mem"
)

// pair connects a Client and a Responder over a fresh mem transport.
type pair struct {
    client *link.Client
    host   *link.Responder
    notes  *notify.Channel
    served chan error
}

func newPair(t *testing.T, format protocol.Format) *pair {
    t.Helper()
    ctx, cancel := context.WithCancel(context.Background())
    t.Cleanup(cancel)

    tr := mem.New()
    l, err := tr.Listen(ctx, "host")
    require.NoError(t, err)
    cs, err := tr.Dial(ctx, "host", transport.PeerInfo{ID: "plugin"})
    require.NoError(t, err)
    ss, err := l.Accept(ctx)
    require.NoError(t, err)

    hostStream, err := ss.AcceptStream(ctx)
    require.NoError(t, err)
    hostLink, err := link.New(hostStream, link.WithFormat(format))
    require.NoError(t, err)
    host := link.NewResponder(hostLink)
    host.Handle("ping", func(context.Context, protocol.Envelope) (any, error) { return "pong", nil })
    host.Handle("echo", func(_ context.Context, req protocol.Envelope) (any, error) { return req.Payload, nil })
    host.Handle("fail", func(context.Context, protocol.Envelope) (any, error) { return nil, errors.New("no document open") })
    host.Handle("reject", func(context.Context, protocol.Envelope) (any, error) {
        return nil, &link.Reject{Reason: map[string]any{"message": "not allowed"}}
    })
    host.Handle("hang", func(ctx context.Context, _ protocol.Envelope) (any, error) {
        <-ctx.Done()
        return nil, ctx.Err()
    })
    host.Handle("panic", func(context.Context, protocol.Envelope) (any, error) { panic("boom") })

    p := &pair{host: host, notes: notify.NewChannel(8), served: make(chan error, 1)}
    go func() { p.served <- host.Serve(ctx) }()

    clientStream, err := cs.OpenStream(ctx)
    require.NoError(t, err)
    clientLink, err := link.New(clientStream, link.WithFormat(format))
    require.NoError(t, err)
    p.client = link.Bind(ctx, clientLink,
        correlator.WithNotifier(p.notes),
        correlator.WithMetrics(correlator.NewMetrics(prometheus.NewRegistry())),
    )
    t.Cleanup(func() { _ = p.client.Close() })
    return p
}

func TestRoundTripAllFormats(t *testing.T) {
    for _, f := range []protocol.Format{protocol.FormatJSON, protocol.FormatCBOR, protocol.FormatProto} {
        t.Run(f.String(), func(t *testing.T) {
            p := newPair(t, f)
            ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
            defer cancel()

            val, err := p.client.Do(ctx, "ping", nil, time.Second)
            require.NoError(t, err)
            assert.Equal(t, "pong", val)

            val, err = p.client.Do(ctx, "echo", map[string]any{"layer": "bg"}, time.Second)
            require.NoError(t, err)
            assert.Equal(t, map[string]any{"layer": "bg"}, val)
        })
    }
}

func TestFailuresReachCaller(t *testing.T) {
    p := newPair(t, protocol.FormatJSON)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    _, err := p.client.Do(ctx, "fail", nil, time.Second)
    var re *correlator.RemoteError
    require.ErrorAs(t, err, &re)
    assert.Equal(t, protocol.KindResponse, re.Kind)
    assert.Equal(t, "no document open", re.Message)

    _, err = p.client.Do(ctx, "reject", nil, time.Second)
    require.ErrorAs(t, err, &re)
    assert.Equal(t, protocol.KindError, re.Kind)
    assert.Equal(t, "not allowed", re.Message)

    _, err = p.client.Do(ctx, "nope", nil, time.Second)
    require.ErrorAs(t, err, &re)
    assert.Contains(t, re.Message, "unknown op")

    _, err = p.client.Do(ctx, "panic", nil, time.Second)
    require.ErrorAs(t, err, &re)
    assert.Contains(t, re.Message, "internal error")
}

func TestTimeoutWhileHostHangs(t *testing.T) {
    p := newPair(t, protocol.FormatJSON)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    _, err := p.client.Do(ctx, "hang", nil, 50*time.Millisecond)
    assert.ErrorIs(t, err, correlator.ErrTimeout)

    // the link stays usable
    val, err := p.client.Do(ctx, "ping", nil, time.Second)
    require.NoError(t, err)
    assert.Equal(t, "pong", val)
}

func TestConcurrentCallsOverOneLink(t *testing.T) {
    p := newPair(t, protocol.FormatCBOR)
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()

    var wg sync.WaitGroup
    errs := make(chan error, 50)
    for i := 0; i < 50; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            want := fmt.Sprintf("msg-%d", i)
            val, err := p.client.Do(ctx, "echo", want, 2*time.Second)
            if err != nil { errs <- err; return }
            if val != want { errs <- fmt.Errorf("got %v want %s", val, want) }
        }(i)
    }
    wg.Wait()
    close(errs)
    for err := range errs { t.Error(err) }
}

func TestNotificationsReachSink(t *testing.T) {
    p := newPair(t, protocol.FormatJSON)
    require.NoError(t, p.host.Notify(map[string]any{"progress": 0.5}))
    select {
    case env := <-p.notes.C():
        assert.Equal(t, protocol.KindNotification, env.Kind)
        assert.Equal(t, map[string]any{"progress": 0.5}, env.Payload)
    case <-time.After(2 * time.Second):
        t.Fatalf("notification not delivered")
    }
}

func TestClientCloseSettlesPending(t *testing.T) {
    p := newPair(t, protocol.FormatJSON)
    call, err := p.client.Request(context.Background(), "hang", nil, time.Minute)
    require.NoError(t, err)

    require.NoError(t, p.client.Close())
    select {
    case <-call.Done():
    case <-time.After(2 * time.Second):
        t.Fatalf("pending call not released")
    }
    _, err = call.Result()
    assert.ErrorIs(t, err, correlator.ErrClosed)

    // the host sees the stream end and returns
    select {
    case err := <-p.served:
        assert.NoError(t, err)
    case <-time.After(2 * time.Second):
        t.Fatalf("responder did not stop")
    }
}

type failing struct{ err error }

func (f failing) Send(protocol.Envelope) error { return f.err }

type counting struct{ n int }

func (c *counting) Send(protocol.Envelope) error { c.n++; return nil }

func TestFailover(t *testing.T) {
    env := protocol.NewRequest(1, "placeImage", nil, time.Now())
    first, second := &counting{}, &counting{}
    cep, uxp := errors.New("cep down"), errors.New("uxp down")

    // the preferred leg takes it alone
    require.NoError(t, link.Failover{first, second}.Send(env))
    assert.Equal(t, 1, first.n)
    assert.Equal(t, 0, second.n)

    require.NoError(t, link.Failover{failing{cep}, second}.Send(env))
    assert.Equal(t, 1, second.n)

    err := link.Failover{failing{cep}, failing{uxp}}.Send(env)
    assert.ErrorIs(t, err, cep)
    assert.ErrorIs(t, err, uxp)

    assert.Error(t, link.Failover{}.Send(env))
}

func TestFailoverStopsOnceContextEnds(t *testing.T) {
    env := protocol.NewRequest(1, "placeImage", nil, time.Now())
    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    next := &counting{}
    err := link.Failover{failing{ctx.Err()}, next}.SendContext(ctx, env)
    assert.ErrorIs(t, err, context.Canceled)
    assert.Equal(t, 0, next.n)
}

// dialLeg connects a client Link to a fresh host that answers whoami with
// its own name.
func dialLeg(t *testing.T, ctx context.Context, name string) (*link.Link, *link.Responder) {
    t.Helper()
    tr := mem.New()
    l, err := tr.Listen(ctx, name)
    require.NoError(t, err)
    cs, err := tr.Dial(ctx, name, transport.PeerInfo{ID: "plugin"})
    require.NoError(t, err)
    ss, err := l.Accept(ctx)
    require.NoError(t, err)
    hs, err := ss.AcceptStream(ctx)
    require.NoError(t, err)
    hl, err := link.New(hs)
    require.NoError(t, err)
    host := link.NewResponder(hl)
    host.Handle("whoami", func(context.Context, protocol.Envelope) (any, error) { return name, nil })
    go func() { _ = host.Serve(ctx) }()

    st, err := cs.OpenStream(ctx)
    require.NoError(t, err)
    cl, err := link.New(st)
    require.NoError(t, err)
    return cl, host
}

func TestBindAllPrefersFirstLegAndFallsBack(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    cep, _ := dialLeg(t, ctx, "cep")
    uxp, uxpHost := dialLeg(t, ctx, "uxp")
    notes := notify.NewChannel(4)
    c := link.BindAll(ctx, []*link.Link{cep, uxp},
        correlator.WithNotifier(notes),
        correlator.WithMetrics(correlator.NewMetrics(prometheus.NewRegistry())),
    )
    defer c.Close()

    val, err := c.Do(ctx, "whoami", nil, time.Second)
    require.NoError(t, err)
    assert.Equal(t, "cep", val)

    // inbound is heard on every leg
    require.NoError(t, uxpHost.Notify("from uxp"))
    select {
    case env := <-notes.C():
        assert.Equal(t, "from uxp", env.Payload)
    case <-time.After(2 * time.Second):
        t.Fatalf("notification from second leg not delivered")
    }

    require.NoError(t, cep.Close())
    val, err = c.Do(ctx, "whoami", nil, time.Second)
    require.NoError(t, err)
    assert.Equal(t, "uxp", val)
}

// deafPair returns a Client whose host accepted the session but never reads.
func deafPair(t *testing.T) *link.Client {
    t.Helper()
    ctx, cancel := context.WithCancel(context.Background())
    t.Cleanup(cancel)
    tr := mem.New()
    l, err := tr.Listen(ctx, "deaf")
    require.NoError(t, err)
    cs, err := tr.Dial(ctx, "deaf", transport.PeerInfo{ID: "plugin"})
    require.NoError(t, err)
    ss, err := l.Accept(ctx)
    require.NoError(t, err)
    t.Cleanup(func() { _ = ss.Close() })
    st, err := cs.OpenStream(ctx)
    require.NoError(t, err)
    lk, err := link.New(st)
    require.NoError(t, err)
    c := link.Bind(ctx, lk, correlator.WithMetrics(correlator.NewMetrics(prometheus.NewRegistry())))
    t.Cleanup(func() { _ = c.Close() })
    return c
}

func TestRequestReturnsWhenHostStopsReading(t *testing.T) {
    cases := map[string]struct {
        timeout time.Duration
        release func(t *testing.T, c *link.Client, cancel context.CancelFunc)
        want    error
    }{
        "deadline": {timeout: 50 * time.Millisecond, release: func(*testing.T, *link.Client, context.CancelFunc) {}, want: correlator.ErrTimeout},
        "cancel id": {timeout: time.Minute, release: func(t *testing.T, c *link.Client, _ context.CancelFunc) {
            assert.Eventually(t, func() bool { return c.Cancel(1) }, time.Second, 5*time.Millisecond)
        }, want: correlator.ErrCanceled},
        "ctx": {timeout: time.Minute, release: func(_ *testing.T, _ *link.Client, cancel context.CancelFunc) { cancel() }, want: correlator.ErrCanceled},
    }
    for name, tc := range cases {
        t.Run(name, func(t *testing.T) {
            c := deafPair(t)
            ctx, cancel := context.WithCancel(context.Background())
            defer cancel()

            returned := make(chan *correlator.Call, 1)
            go func() {
                call, err := c.Request(ctx, "ping", nil, tc.timeout)
                if err != nil { t.Errorf("request: %v", err) }
                returned <- call
            }()
            time.Sleep(10 * time.Millisecond)
            tc.release(t, c, cancel)

            select {
            case call := <-returned:
                wctx, wcancel := context.WithTimeout(context.Background(), time.Second)
                defer wcancel()
                _, err := call.Wait(wctx)
                assert.ErrorIs(t, err, tc.want)
            case <-time.After(2 * time.Second):
                t.Fatalf("Request still blocked in the transport write")
            }
            assert.Equal(t, 0, c.Pending())
        })
    }
}
