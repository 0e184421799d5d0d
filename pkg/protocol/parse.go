package protocol

import (
    "encoding/json"
    "errors"
    "fmt"

    "google.golang.org/protobuf/types/known/structpb"

    "hostbridge/pkg/protocol/codec"
)

// ErrParse marks an inbound message that could not be turned into an
// Envelope. Such messages cannot be attributed to any request.
var ErrParse = errors.New("protocol: unparseable message")

// Parse turns a raw inbound message into a validated Envelope. Hosts deliver
// either serialized text or already structured objects, so raw may be a
// string, a frame ([]byte / json.RawMessage), an Envelope, a generic
// map[string]any or a *structpb.Struct.
func Parse(r *codec.Registry, raw any) (Envelope, error) {
    env, err := parse(r, raw)
    if err != nil { return Envelope{}, fmt.Errorf("%w: %v", ErrParse, err) }
    if err := env.Validate(); err != nil { return Envelope{}, fmt.Errorf("%w: %v", ErrParse, err) }
    return env, nil
}

func parse(r *codec.Registry, raw any) (Envelope, error) {
    switch v := raw.(type) {
    case nil:
        return Envelope{}, errors.New("nil message")
    case Envelope:
        return v, nil
    case *Envelope:
        if v == nil { return Envelope{}, errors.New("nil envelope") }
        return *v, nil
    case string:
        var env Envelope
        err := json.Unmarshal([]byte(v), &env)
        return env, err
    case []byte:
        env, _, err := DecodeEnvelope(r, v)
        return env, err
    case json.RawMessage:
        env, _, err := DecodeEnvelope(r, v)
        return env, err
    case *structpb.Struct:
        return FromStruct(v)
    case map[string]any:
        b, err := json.Marshal(v)
        if err != nil { return Envelope{}, err }
        var env Envelope
        err = json.Unmarshal(b, &env)
        return env, err
    default:
        return Envelope{}, fmt.Errorf("unsupported message type %T", raw)
    }
}
