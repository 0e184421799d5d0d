package protocol

import (
    "errors"
    "fmt"
    "time"
)

// Envelope is the unit exchanged with the host process.
//
// ID correlates a response or error with the request that caused it and is
// zero on notifications. Kind is one of the Kind* constants. Op names the
// requested operation on request envelopes. Payload is opaque to the
// transport and to the correlator.
type Envelope struct {
    ID        uint64 `json:"id"                cbor:"id"`
    Kind      string `json:"type"              cbor:"type"`
    Op        string `json:"op,omitempty"      cbor:"op,omitempty"`
    Payload   any    `json:"data,omitempty"    cbor:"data,omitempty"`
    Timestamp int64  `json:"timestamp"         cbor:"timestamp"`
    Success   *bool  `json:"success,omitempty" cbor:"success,omitempty"`
}

// NewRequest builds an outbound request envelope stamped with now.
func NewRequest(id uint64, op string, payload any, now time.Time) Envelope {
    return Envelope{ID: id, Kind: KindRequest, Op: op, Payload: payload, Timestamp: now.UnixMilli()}
}

// NewResponse builds a successful response to request id.
func NewResponse(id uint64, payload any, now time.Time) Envelope {
    ok := true
    return Envelope{ID: id, Kind: KindResponse, Payload: payload, Timestamp: now.UnixMilli(), Success: &ok}
}

// NewFailure builds a response to request id with success=false.
func NewFailure(id uint64, reason any, now time.Time) Envelope {
    ok := false
    return Envelope{ID: id, Kind: KindResponse, Payload: reason, Timestamp: now.UnixMilli(), Success: &ok}
}

// NewError builds an error envelope for request id.
func NewError(id uint64, reason any, now time.Time) Envelope {
    return Envelope{ID: id, Kind: KindError, Payload: reason, Timestamp: now.UnixMilli()}
}

// NewNotification builds an out-of-band notification.
func NewNotification(payload any, now time.Time) Envelope {
    return Envelope{Kind: KindNotification, Payload: payload, Timestamp: now.UnixMilli()}
}

// IsSuccess reports whether a response envelope signals success. A missing
// success flag counts as failure, as the host always sets it on success.
func (e *Envelope) IsSuccess() bool { return e.Success != nil && *e.Success }

// Time returns the envelope timestamp.
func (e *Envelope) Time() time.Time { return time.UnixMilli(e.Timestamp) }

var (
    errMissingKind = errors.New("missing type")
    errMissingID   = errors.New("missing id")
)

// Validate checks the routing fields the correlator relies on. Unknown kinds
// are valid here; routing decides what to do with them.
func (e *Envelope) Validate() error {
    if e.Kind == "" { return errMissingKind }
    switch e.Kind {
    case KindResponse, KindError:
        if e.ID == 0 { return fmt.Errorf("%s envelope: %w", e.Kind, errMissingID) }
    }
    return nil
}
