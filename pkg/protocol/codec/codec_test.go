package codec

import (
    "testing"
    "google.golang.org/protobuf/types/known/structpb"
)

func TestJSONCodec(t *testing.T) {
    c := JSON()
    in := map[string]any{"id": 1, "type": "response"}
    b, err := c.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out map[string]any
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out["id"].(float64) != 1 || out["type"].(string) != "response" {
        t.Fatalf("roundtrip mismatch: %#v", out)
    }
}

func TestCBORCodecDecodesStringKeyedMaps(t *testing.T) {
    c, err := CBOR()
    if err != nil { t.Fatalf("new cbor: %v", err) }
    in := map[string]any{"layer": map[string]any{"name": "bg"}}
    b, err := c.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out any
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    m, ok := out.(map[string]any)
    if !ok { t.Fatalf("want map[string]any, got %T", out) }
    inner, ok := m["layer"].(map[string]any)
    if !ok || inner["name"] != "bg" { t.Fatalf("nested map mismatch: %#v", m) }
}

func TestProtoCodec(t *testing.T) {
    c := Proto()
    s, err := structpb.NewStruct(map[string]any{"op": "ping"})
    if err != nil { t.Fatalf("struct: %v", err) }
    b, err := c.Marshal(s)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out structpb.Struct
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out.Fields["op"].GetStringValue() != "ping" { t.Fatalf("roundtrip mismatch") }
}

func TestProtoCodecRejectsPlainValues(t *testing.T) {
    if _, err := Proto().Marshal(map[string]any{"a": 1}); err == nil {
        t.Fatalf("expected error for non proto.Message")
    }
}

func TestRegistryLookup(t *testing.T) {
    r := NewRegistry()
    if r.Get("application/json") == nil { t.Fatalf("json not preloaded") }
    if r.Get("application/cbor") != nil { t.Fatalf("cbor should not be preloaded") }
    c, err := CBOR()
    if err != nil { t.Fatalf("cbor: %v", err) }
    r.Register(c)
    if r.Get("application/cbor") == nil { t.Fatalf("cbor not registered") }
    var nilReg *Registry
    if nilReg.Get("application/json") != nil { t.Fatalf("nil registry must return nil") }
}
