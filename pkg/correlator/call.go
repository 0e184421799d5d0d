package correlator

import (
    "context"
    "encoding/json"
    "sync"
)

// Call is the caller's handle on one outstanding request. It is settled
// exactly once; Done is closed at that moment.
type Call struct {
    id   uint64
    op   string
    done chan struct{}
    once sync.Once
    val  any
    err  error
}

func newCall(id uint64, op string) *Call {
    return &Call{id: id, op: op, done: make(chan struct{})}
}

// ID returns the identity the request was sent with.
func (c *Call) ID() uint64 { return c.id }

// Op returns the requested operation.
func (c *Call) Op() string { return c.op }

// Done is closed when the call settles.
func (c *Call) Done() <-chan struct{} { return c.done }

// Result returns the settled outcome, or ErrPending if the call is still
// outstanding.
func (c *Call) Result() (any, error) {
    select {
    case <-c.done:
        return c.val, c.err
    default:
        return nil, ErrPending
    }
}

// Wait blocks until the call settles or ctx is done. Giving up here does not
// release the request; use the request context or Correlator.Cancel for that.
func (c *Call) Wait(ctx context.Context) (any, error) {
    select {
    case <-c.done:
        return c.val, c.err
    case <-ctx.Done():
        return nil, ctx.Err()
    }
}

// Decode waits for the call and unmarshals a successful payload into v.
func (c *Call) Decode(ctx context.Context, v any) error {
    val, err := c.Wait(ctx)
    if err != nil { return err }
    b, err := json.Marshal(val)
    if err != nil { return err }
    return json.Unmarshal(b, v)
}

// settle stores the outcome. It reports false when the call was already
// settled.
func (c *Call) settle(val any, err error) bool {
    settled := false
    c.once.Do(func() {
        c.val, c.err = val, err
        close(c.done)
        settled = true
    })
    return settled
}
