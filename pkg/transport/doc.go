// Package transport defines the byte-frame channels hostbridge runs over and
// provides the shared framing used by the mem, tcp and quic implementations.
//
// Key concepts:
// - Transport: dials/listens for Sessions of a specific Kind
// - Session: a connection to one peer exposing a single control Stream
// - Stream: fire-and-forget Send/Recv of opaque frames; no request/response
//   semantics and no ordering guarantees are assumed by callers
package transport
