package protocol

import (
    "encoding/json"
    "fmt"
    "strings"

    "google.golang.org/protobuf/types/known/structpb"

    "hostbridge/pkg/protocol/codec"
)

// Format is a compact on-wire indicator of frame encoding. It is carried as
// the first byte of binary frames. Text frames (first byte '{') are bare
// JSON and carry no marker.
type Format uint8

const (
    FormatUnknown Format = iota
    FormatJSON
    FormatCBOR
    FormatProto
)

func (f Format) String() string {
    switch f {
    case FormatJSON:
        return ContentJSON
    case FormatCBOR:
        return ContentCBOR
    case FormatProto:
        return ContentProto
    default:
        return ContentUnknown
    }
}

// ParseFormat maps a config value (json, cbor, proto) to a Format.
func ParseFormat(s string) (Format, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "", "json":
        return FormatJSON, nil
    case "cbor":
        return FormatCBOR, nil
    case "proto", "protobuf":
        return FormatProto, nil
    default:
        return FormatUnknown, fmt.Errorf("unknown format: %q", s)
    }
}

// CodecFor returns a codec instance for a given format.
func CodecFor(r *codec.Registry, f Format) (codec.Codec, error) {
    switch f {
    case FormatJSON:
        if c := r.Get(ContentJSON); c != nil { return c, nil }
        return codec.JSON(), nil
    case FormatCBOR:
        if c := r.Get(ContentCBOR); c != nil { return c, nil }
        return codec.CBOR()
    case FormatProto:
        if c := r.Get(ContentProto); c != nil { return c, nil }
        return codec.Proto(), nil
    default:
        return nil, fmt.Errorf("unknown format: %d", f)
    }
}

// EncodeBody serializes v using the codec for f and prefixes the result
// with a single format byte.
func EncodeBody(r *codec.Registry, f Format, v any) ([]byte, error) {
    c, err := CodecFor(r, f)
    if err != nil { return nil, err }
    b, err := c.Marshal(v)
    if err != nil { return nil, err }
    out := make([]byte, 1+len(b))
    out[0] = byte(f)
    copy(out[1:], b)
    return out, nil
}

// DecodeBody decodes a payload produced by EncodeBody into v.
func DecodeBody(r *codec.Registry, payload []byte, v any) (Format, error) {
    if len(payload) == 0 { return FormatUnknown, fmt.Errorf("empty payload") }
    f := Format(payload[0])
    c, err := CodecFor(r, f)
    if err != nil { return f, err }
    if err := c.Unmarshal(payload[1:], v); err != nil { return f, err }
    return f, nil
}

// EncodeEnvelope renders env as a frame in format f. Protobuf frames carry
// the envelope as a structpb.Struct.
func EncodeEnvelope(r *codec.Registry, f Format, env Envelope) ([]byte, error) {
    if f == FormatProto {
        s, err := ToStruct(env)
        if err != nil { return nil, err }
        return EncodeBody(r, f, s)
    }
    return EncodeBody(r, f, env)
}

// DecodeEnvelope parses one frame. A frame starting with '{' is taken as
// bare JSON text, anything else must carry a format byte.
func DecodeEnvelope(r *codec.Registry, frame []byte) (Envelope, Format, error) {
    var env Envelope
    if len(frame) == 0 { return env, FormatUnknown, fmt.Errorf("empty frame") }
    if frame[0] == '{' {
        if err := json.Unmarshal(frame, &env); err != nil { return Envelope{}, FormatJSON, err }
        return env, FormatJSON, nil
    }
    if Format(frame[0]) == FormatProto {
        var s structpb.Struct
        if _, err := DecodeBody(r, frame, &s); err != nil { return Envelope{}, FormatProto, err }
        env, err := FromStruct(&s)
        return env, FormatProto, err
    }
    f, err := DecodeBody(r, frame, &env)
    if err != nil { return Envelope{}, f, err }
    return env, f, nil
}

// ToStruct converts an envelope to its protobuf Struct form. The payload is
// normalized through JSON so arbitrary Go values survive the conversion.
func ToStruct(env Envelope) (*structpb.Struct, error) {
    b, err := json.Marshal(env)
    if err != nil { return nil, err }
    var m map[string]any
    if err := json.Unmarshal(b, &m); err != nil { return nil, err }
    return structpb.NewStruct(m)
}

// FromStruct is the inverse of ToStruct.
func FromStruct(s *structpb.Struct) (Envelope, error) {
    var env Envelope
    if s == nil { return env, fmt.Errorf("nil struct") }
    b, err := json.Marshal(s.AsMap())
    if err != nil { return env, err }
    err = json.Unmarshal(b, &env)
    return env, err
}
