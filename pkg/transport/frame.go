package transport

import (
    "bufio"
    "context"
    "encoding/binary"
    "errors"
    "fmt"
    "io"
    "sync/atomic"
    "time"
)

// MaxFrameSize bounds a single frame on stream transports.
const MaxFrameSize = 1 << 24

var (
    ErrFrameTooLarge = errors.New("transport: frame too large")
    // ErrStreamBroken is returned after a write was cut off mid-frame.
    ErrStreamBroken = errors.New("transport: stream broken by interrupted write")
)

// FrameStream implements Stream over any byte stream with u32 LE
// length-prefixed frames.
type FrameStream struct {
    sem      chan struct{} // one writer at a time; a channel so waiting honours ctx
    br       *bufio.Reader
    w        io.Writer
    c        io.Closer
    lastSeen atomic.Int64
    broken   atomic.Bool
}

func NewFrameStream(rwc io.ReadWriteCloser) *FrameStream {
    return &FrameStream{sem: make(chan struct{}, 1), br: bufio.NewReader(rwc), w: rwc, c: rwc}
}

// writeDeadliner is satisfied by net.Conn and quic streams.
type writeDeadliner interface {
    SetWriteDeadline(time.Time) error
}

func (s *FrameStream) SendBytes(b []byte) error { return s.SendBytesContext(context.Background(), b) }

// SendBytesContext writes one frame. When the underlying stream supports
// write deadlines, ending ctx interrupts a blocked write. A frame cut off
// part way leaves the peer unable to resync, so the stream is closed.
func (s *FrameStream) SendBytesContext(ctx context.Context, b []byte) error {
    if len(b) > MaxFrameSize { return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(b)) }
    select {
    case s.sem <- struct{}{}:
    case <-ctx.Done():
        return ctx.Err()
    }
    defer func() { <-s.sem }()
    if err := ctx.Err(); err != nil { return err }
    if s.broken.Load() { return ErrStreamBroken }

    frame := make([]byte, 4+len(b))
    binary.LittleEndian.PutUint32(frame, uint32(len(b)))
    copy(frame[4:], b)

    if wd, ok := s.w.(writeDeadliner); ok && ctx.Done() != nil {
        if dl, ok := ctx.Deadline(); ok { _ = wd.SetWriteDeadline(dl) }
        fired := make(chan struct{})
        stop := context.AfterFunc(ctx, func() {
            _ = wd.SetWriteDeadline(time.Unix(1, 0))
            close(fired)
        })
        defer func() {
            if !stop() { <-fired }
            _ = wd.SetWriteDeadline(time.Time{})
        }()
    }

    n, err := s.w.Write(frame)
    if err != nil {
        if n > 0 {
            s.broken.Store(true)
            _ = s.c.Close()
        }
        if cerr := ctx.Err(); cerr != nil { return fmt.Errorf("%w: %w", cerr, err) }
        return err
    }
    s.touch(); return nil
}

func (s *FrameStream) RecvBytes() ([]byte, error) {
    var lenbuf [4]byte
    if _, err := io.ReadFull(s.br, lenbuf[:]); err != nil { return nil, err }
    n := binary.LittleEndian.Uint32(lenbuf[:])
    if n > MaxFrameSize { return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n) }
    buf := make([]byte, n)
    if _, err := io.ReadFull(s.br, buf); err != nil { return nil, err }
    s.touch(); return buf, nil
}

func (s *FrameStream) Close() error { return s.c.Close() }

// LastSeen returns when a frame last crossed the stream.
func (s *FrameStream) LastSeen() time.Time {
    ns := s.lastSeen.Load()
    if ns == 0 { return time.Time{} }
    return time.Unix(0, ns)
}

func (s *FrameStream) touch() { s.lastSeen.Store(time.Now().UnixNano()) }
