package protocol

// Envelope kinds, carried in the "type" field on the wire.
const (
    KindRequest      = "request"
    KindResponse     = "response"
    KindError        = "error"
    KindNotification = "notification"
)

// ContentType hints for payload decoding.
const (
    ContentUnknown = "application/octet-stream"
    ContentCBOR    = "application/cbor"
    ContentJSON    = "application/json"
    ContentProto   = "application/x-protobuf"
)

// DefaultFailureMessage is used when a failed response carries no reason.
const DefaultFailureMessage = "operation failed"
