package link

import (
    "context"
    "errors"
    "sync"

    "go.uber.org/zap"

    "hostbridge/pkg/correlator"
)

// Client is a Correlator wired to one or more Links. Requests go out through
// the first link that takes them and every link's read loop feeds the same
// Correlator, so a response is matched whichever leg it arrives on.
type Client struct {
    *correlator.Correlator
    links  []*Link
    cancel context.CancelFunc
    done   chan struct{}
    err    error
}

// Bind starts the read loop for l and returns the Client. The Correlator is
// closed when the loop ends, settling anything still pending with
// correlator.ErrClosed.
func Bind(ctx context.Context, l *Link, opts ...correlator.Option) *Client {
    return BindAll(ctx, []*Link{l}, opts...)
}

// BindAll binds several legs to one Correlator. Outbound envelopes go
// through Failover in the order given; the Correlator closes once every
// read loop has ended. The first link supplies the codecs and logger.
func BindAll(ctx context.Context, links []*Link, opts ...correlator.Option) *Client {
    ctx, cancel := context.WithCancel(ctx)
    first := links[0]
    var sender correlator.Sender = first
    if len(links) > 1 {
        legs := make(Failover, len(links))
        for i, l := range links { legs[i] = l }
        sender = legs
    }
    base := []correlator.Option{correlator.WithCodecs(first.codecs), correlator.WithLogger(first.log)}
    c := &Client{
        Correlator: correlator.New(sender, append(base, opts...)...),
        links:      links,
        cancel:     cancel,
        done:       make(chan struct{}),
    }

    var (
        wg   sync.WaitGroup
        mu   sync.Mutex
        errs []error
    )
    for _, l := range links {
        wg.Add(1)
        go func(l *Link) {
            defer wg.Done()
            if err := l.Run(ctx, func(b []byte) { c.HandleInbound(b) }); err != nil {
                mu.Lock(); errs = append(errs, err); mu.Unlock()
            }
        }(l)
    }
    go func() {
        defer close(c.done)
        wg.Wait()
        c.err = errors.Join(errs...)
        c.Correlator.Close()
        first.log.Debug("client read loops ended", zap.Int("legs", len(links)), zap.Error(c.err))
    }()
    return c
}

// Done is closed once every read loop has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the read loops ended; valid after Done.
func (c *Client) Err() error {
    select {
    case <-c.done:
        return c.err
    default:
        return nil
    }
}

// Close stops the read loops, closes the streams and waits for both.
func (c *Client) Close() error {
    c.cancel()
    <-c.done
    return c.err
}
