package protocol

import (
    "testing"
    "time"

    "hostbridge/pkg/protocol/codec"
)

func TestEncodeDecodeEnvelopeAllFormats(t *testing.T) {
    reg := codec.NewRegistry()
    now := time.UnixMilli(1700000000000)
    in := NewResponse(42, map[string]any{"layerName": "bg"}, now)
    for _, f := range []Format{FormatJSON, FormatCBOR, FormatProto} {
        b, err := EncodeEnvelope(reg, f, in)
        if err != nil { t.Fatalf("%s encode: %v", f, err) }
        if b[0] != byte(f) { t.Fatalf("%s format prefix mismatch", f) }
        out, got, err := DecodeEnvelope(reg, b)
        if err != nil { t.Fatalf("%s decode: %v", f, err) }
        if got != f { t.Fatalf("format mismatch: %s vs %s", got, f) }
        if out.ID != 42 || out.Kind != KindResponse || !out.IsSuccess() || out.Timestamp != in.Timestamp {
            t.Fatalf("%s envelope mismatch: %#v", f, out)
        }
        m, ok := out.Payload.(map[string]any)
        if !ok || m["layerName"] != "bg" { t.Fatalf("%s payload mismatch: %#v", f, out.Payload) }
    }
}

func TestDecodeEnvelopeBareJSON(t *testing.T) {
    env, f, err := DecodeEnvelope(nil, []byte(`{"id":3,"type":"error","data":"layer locked"}`))
    if err != nil { t.Fatalf("decode: %v", err) }
    if f != FormatJSON { t.Fatalf("want json, got %s", f) }
    if env.ID != 3 || env.Kind != KindError || env.Payload != "layer locked" { t.Fatalf("mismatch: %#v", env) }
}

func TestDecodeEnvelopeRejectsUnknownFormat(t *testing.T) {
    if _, _, err := DecodeEnvelope(nil, []byte{0x7f, 0x01}); err == nil {
        t.Fatalf("expected error for unknown format byte")
    }
    if _, _, err := DecodeEnvelope(nil, nil); err == nil {
        t.Fatalf("expected error for empty frame")
    }
}

func TestParseFormat(t *testing.T) {
    cases := map[string]Format{"": FormatJSON, "JSON": FormatJSON, "cbor": FormatCBOR, "protobuf": FormatProto}
    for in, want := range cases {
        got, err := ParseFormat(in)
        if err != nil || got != want { t.Fatalf("ParseFormat(%q) = %v, %v", in, got, err) }
    }
    if _, err := ParseFormat("xml"); err == nil { t.Fatalf("expected error for xml") }
}
