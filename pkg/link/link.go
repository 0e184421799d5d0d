// Package link binds a transport stream to the envelope protocol: outbound
// encoding for a Correlator, the inbound read loop, and the host side
// Responder.
package link

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net"

    "go.uber.org/zap"

    "hostbridge/pkg/correlator"
    "hostbridge/pkg/protocol"
    "hostbridge/pkg/protocol/codec"
    "hostbridge/pkg/transport"
)

// Link encodes envelopes onto one stream and reads frames back off it.
type Link struct {
    stream transport.Stream
    codecs *codec.Registry
    format protocol.Format
    log    *zap.Logger
}

type Option func(*Link)

// WithFormat selects the outbound frame encoding. Inbound frames are
// accepted in any format.
func WithFormat(f protocol.Format) Option { return func(l *Link) { l.format = f } }

func WithCodecs(r *codec.Registry) Option {
    return func(l *Link) { if r != nil { l.codecs = r } }
}

func WithLogger(log *zap.Logger) Option {
    return func(l *Link) { if log != nil { l.log = log } }
}

func New(stream transport.Stream, opts ...Option) (*Link, error) {
    l := &Link{stream: stream, codecs: codec.NewRegistry(), format: protocol.FormatJSON, log: zap.L()}
    for _, o := range opts { o(l) }
    if l.codecs.Get(protocol.ContentCBOR) == nil {
        c, err := codec.CBOR()
        if err != nil { return nil, fmt.Errorf("link: %w", err) }
        l.codecs.Register(c)
    }
    if _, err := protocol.CodecFor(l.codecs, l.format); err != nil { return nil, fmt.Errorf("link: %w", err) }
    l.log = l.log.Named("link")
    return l, nil
}

// Send encodes env in the link's format and writes it as one frame.
func (l *Link) Send(env protocol.Envelope) error { return l.SendContext(context.Background(), env) }

// SendContext is Send with the write abandoned once ctx ends, on streams
// that support it.
func (l *Link) SendContext(ctx context.Context, env protocol.Envelope) error {
    b, err := protocol.EncodeEnvelope(l.codecs, l.format, env)
    if err != nil { return fmt.Errorf("encode %s envelope: %w", env.Kind, err) }
    return transport.SendContext(ctx, l.stream, b)
}

// Codecs returns the registry frames are decoded with.
func (l *Link) Codecs() *codec.Registry { return l.codecs }

func (l *Link) Format() protocol.Format { return l.format }

// Run reads frames and passes each to handle until the stream fails or ctx
// ends; ctx ending closes the stream. A clean end of stream returns nil.
func (l *Link) Run(ctx context.Context, handle func([]byte)) error {
    stop := context.AfterFunc(ctx, func() { _ = l.stream.Close() })
    defer stop()
    for {
        b, err := l.stream.RecvBytes()
        if err != nil {
            if ctx.Err() != nil || isClosed(err) { return nil }
            l.log.Warn("read loop stopped", zap.Error(err))
            return err
        }
        handle(b)
    }
}

func (l *Link) Close() error { return l.stream.Close() }

func isClosed(err error) bool {
    return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}

// Failover sends each envelope over the first leg that accepts it, in
// preference order. A leg is skipped only when it fails synchronously, so a
// request is delivered at most once. It fails when every leg fails.
type Failover []correlator.Sender

var errNoSenders = errors.New("link: failover has no senders")

func (f Failover) Send(env protocol.Envelope) error { return f.SendContext(context.Background(), env) }

func (f Failover) SendContext(ctx context.Context, env protocol.Envelope) error {
    if len(f) == 0 { return errNoSenders }
    var errs []error
    for _, s := range f {
        var err error
        if cs, ok := s.(correlator.ContextSender); ok {
            err = cs.SendContext(ctx, env)
        } else {
            err = s.Send(env)
        }
        if err == nil { return nil }
        errs = append(errs, err)
        // ctx ends when the call settles; nothing waits for this envelope any more
        if ctx.Err() != nil { break }
    }
    return errors.Join(errs...)
}

var (
    _ correlator.ContextSender = (*Link)(nil)
    _ correlator.ContextSender = Failover(nil)
)
