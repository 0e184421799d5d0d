package correlator

import (
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "hostbridge/pkg/protocol"
)

var (
    ErrTimeout  = errors.New("correlator: request timed out")
    ErrSend     = errors.New("correlator: send failed")
    ErrRemote   = errors.New("correlator: remote failure")
    ErrCanceled = errors.New("correlator: request canceled")
    ErrClosed   = errors.New("correlator: closed")
    // ErrPending is returned by Call.Result before the call settles.
    ErrPending = errors.New("correlator: call not settled")
)

// TimeoutError reports a request that got no matching response in time.
type TimeoutError struct {
    ID    uint64
    Op    string
    After time.Duration
}

func (e *TimeoutError) Error() string {
    return fmt.Sprintf("request %d (%s) timed out after %s", e.ID, e.Op, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// SendError wraps a synchronous transport failure.
type SendError struct {
    ID  uint64
    Err error
}

func (e *SendError) Error() string { return fmt.Sprintf("request %d: send: %v", e.ID, e.Err) }
func (e *SendError) Unwrap() error { return e.Err }
func (e *SendError) Is(target error) bool { return target == ErrSend }

// RemoteError is a failure reported by the host, either as an error
// envelope or as a response with success=false. Kind tells which.
type RemoteError struct {
    ID      uint64
    Kind    string
    Message string
    Data    any
}

func (e *RemoteError) Error() string { return fmt.Sprintf("request %d: %s", e.ID, e.Message) }
func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

func newRemoteError(env protocol.Envelope) *RemoteError {
    return &RemoteError{ID: env.ID, Kind: env.Kind, Message: failureMessage(env.Payload), Data: env.Payload}
}

// failureMessage extracts a human readable reason from a failure payload.
func failureMessage(payload any) string {
    switch v := payload.(type) {
    case nil:
        return protocol.DefaultFailureMessage
    case string:
        if v == "" { return protocol.DefaultFailureMessage }
        return v
    case map[string]any:
        for _, k := range []string{"message", "error", "reason"} {
            if s, ok := v[k].(string); ok && s != "" { return s }
        }
        if len(v) == 0 { return protocol.DefaultFailureMessage }
    }
    b, err := json.Marshal(payload)
    if err != nil { return fmt.Sprint(payload) }
    return string(b)
}
