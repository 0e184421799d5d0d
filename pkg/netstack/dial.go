package netstack

import (
    "context"
    "fmt"
    "math/rand"
    "time"

    "go.uber.org/zap"

    "hostbridge/pkg/transport"
)

// Options tunes DialWithBackoff.
type Options struct {
    BackoffInitial time.Duration
    BackoffMax     time.Duration
    BackoffJitter  time.Duration
    // Attempts caps the number of dials; 0 means until ctx ends
    Attempts int
}

func (o Options) withDefaults() Options {
    if o.BackoffInitial <= 0 { o.BackoffInitial = 500 * time.Millisecond }
    if o.BackoffMax <= 0 { o.BackoffMax = 30 * time.Second }
    if o.BackoffMax < o.BackoffInitial { o.BackoffMax = o.BackoffInitial }
    return o
}

// DialWithBackoff dials address until it succeeds, ctx ends or the attempt
// budget runs out, doubling the delay between failures.
func DialWithBackoff(ctx context.Context, tr transport.Transport, address string, peer transport.PeerInfo, opts Options) (transport.Session, error) {
    opts = opts.withDefaults()
    backoff := opts.BackoffInitial
    var lastErr error
    for attempt := 1; ; attempt++ {
        sess, err := tr.Dial(ctx, address, peer)
        if err == nil {
            zap.L().Info("dialed", zap.String("kind", tr.Kind().String()), zap.String("addr", address), zap.Int("attempt", attempt))
            return sess, nil
        }
        lastErr = err
        if ctx.Err() != nil { return nil, ctx.Err() }
        if opts.Attempts > 0 && attempt >= opts.Attempts {
            return nil, fmt.Errorf("dial %s %s: giving up after %d attempts: %w", tr.Kind(), address, attempt, lastErr)
        }
        wait := withJitter(backoff, opts.BackoffJitter)
        zap.L().Warn("dial failed", zap.String("kind", tr.Kind().String()), zap.String("addr", address), zap.Duration("retry_in", wait), zap.Error(err))
        t := time.NewTimer(wait)
        select {
        case <-ctx.Done():
            t.Stop()
            return nil, ctx.Err()
        case <-t.C:
        }
        if backoff < opts.BackoffMax { backoff *= 2; if backoff > opts.BackoffMax { backoff = opts.BackoffMax } }
    }
}

func withJitter(d, jitter time.Duration) time.Duration {
    if jitter <= 0 { return d }
    // add random 0..jitter
    return d + time.Duration(rand.Int63n(int64(jitter)))
}
