// Package netstack builds transports from config and runs the dial and
// accept loops around them.
package netstack

import (
    "fmt"
    "sync"

    "hostbridge/pkg/transport"
    "hostbridge/pkg/transport/mem"
    tquic "hostbridge/pkg/transport/quic"
    ttcp "hostbridge/pkg/transport/tcp"
    "hostbridge/pkg/transport/ws"
)

// ErrUnknownKind reports a transport kind with no implementation.
type ErrUnknownKind string

func (e ErrUnknownKind) Error() string { return "unknown transport kind: " + string(e) }

var (
    sharedMemOnce sync.Once
    sharedMem     *mem.Transport
)

// SharedMem returns the process-wide mem transport so a host and a client
// built separately can find each other's listeners.
func SharedMem() *mem.Transport {
    sharedMemOnce.Do(func() { sharedMem = mem.New() })
    return sharedMem
}

// NewByKind constructs a Transport by string kind.
func NewByKind(kind string) (transport.Transport, error) {
    switch kind {
    case "tcp":
        return ttcp.New(), nil
    case "quic", "h3":
        tr, err := tquic.New()
        if err != nil { return nil, fmt.Errorf("quic transport: %w", err) }
        return tr, nil
    case "ws", "websocket":
        return ws.New(), nil
    case "mem", "inproc":
        return SharedMem(), nil
    default:
        return nil, ErrUnknownKind(kind)
    }
}
