// Package codec holds the payload encodings an envelope can travel in.
package codec

import "sync"

// Codec marshals envelopes and payloads for the wire.
// Implementations must be deterministic and safe for concurrent use.
type Codec interface {
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs.
type Registry struct {
    mu     sync.RWMutex
    byType map[string]Codec
}

// NewRegistry constructs a registry preloaded with the codecs that have no
// construction error path: JSON and Protobuf. CBOR is added with
// Register once CBOR() succeeds, or lazily by the protocol package.
func NewRegistry() *Registry {
    r := &Registry{byType: make(map[string]Codec)}
    r.Register(JSON())
    r.Register(Proto())
    return r
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) {
    r.mu.Lock(); defer r.mu.Unlock()
    r.byType[c.ContentType()] = c
}

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec {
    if r == nil { return nil }
    r.mu.RLock(); defer r.mu.RUnlock()
    return r.byType[contentType]
}
