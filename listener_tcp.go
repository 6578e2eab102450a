package vetis

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/vetis/vetis/config"
	"github.com/vetis/vetis/verrors"
)

// peekConn lets the stream listener inspect the first bytes of a
// connection before deciding whether to run the TLS handshake, without
// consuming them from whatever reads the connection afterward.
type peekConn struct {
	net.Conn
	r *bufio.Reader
}

func newPeekConn(c net.Conn) *peekConn {
	return &peekConn{Conn: c, r: bufio.NewReaderSize(c, 4096)}
}

func (p *peekConn) Read(b []byte) (int, error) { return p.r.Read(b) }
func (p *peekConn) peek(n int) ([]byte, error) { return p.r.Peek(n) }

// singleConnListener adapts one already-accepted net.Conn into a
// net.Listener with exactly one Accept, so the stdlib http.Server (and
// http2.Server's ServeConnOpts) can drive a single connection the same
// way they drive a socket-wide listener.
type singleConnListener struct {
	conn   net.Conn
	ch     chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func newSingleConnListener(conn net.Conn) *singleConnListener {
	l := &singleConnListener{conn: conn, ch: make(chan net.Conn, 1), closed: make(chan struct{})}
	l.ch <- conn
	return l
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	select {
	case c, ok := <-l.ch:
		if !ok {
			return nil, io.EOF
		}
		return c, nil
	case <-l.closed:
		return nil, io.EOF
	}
}

func (l *singleConnListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *singleConnListener) Addr() net.Addr { return l.conn.LocalAddr() }

// StreamListener is a bound TCP socket serving HTTP/1.1 or HTTP/2, with
// per-connection TLS auto-detection via a fixed-length preface peek
// rather than a speculative full read.
type StreamListener struct {
	cfg          config.ListenerConfig
	registry     *registry
	logger       *zap.Logger
	metrics      *serverMetrics
	maxBodyBytes int64

	mu sync.Mutex
	ln net.Listener
}

// NewStreamListener constructs a StreamListener bound to cfg's
// interface/port once Listen is called.
func NewStreamListener(cfg config.ListenerConfig, reg *registry, logger *zap.Logger, metrics *serverMetrics, maxBodyBytes int64) *StreamListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamListener{cfg: cfg, registry: reg, logger: logger, metrics: metrics, maxBodyBytes: maxBodyBytes}
}

// Listen binds the socket and starts accepting connections in the
// background. tlsConfig is nil for listeners with no secured virtual
// hosts, in which case every connection is served cleartext.
func (l *StreamListener) Listen(ctx context.Context, tlsConfig *tls.Config) error {
	addr := net.JoinHostPort(config.ResolveInterface(l.cfg.Interface()).String(), strconv.Itoa(int(l.cfg.Port())))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return verrors.NewBindError(err.Error())
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	handler := &dispatcher{port: l.cfg.Port(), registry: l.registry, logger: l.logger, metrics: l.metrics, maxBodyBytes: l.maxBodyBytes}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go l.acceptLoop(ctx, ln, tlsConfig, handler)
	return nil
}

// Addr returns the listener's bound network address. It is nil until
// Listen has returned successfully.
func (l *StreamListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Close stops accepting new connections on this listener's socket. A
// socket already closed by the cancellation of Listen's context is not
// reported as an error.
func (l *StreamListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (l *StreamListener) acceptLoop(ctx context.Context, ln net.Listener, tlsConfig *tls.Config, handler http.Handler) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.logger.Error("accept failed", zap.Error(err))
			continue
		}
		go l.handleConn(ctx, conn, tlsConfig, handler)
	}
}

func (l *StreamListener) handleConn(ctx context.Context, conn net.Conn, tlsConfig *tls.Config, handler http.Handler) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			l.logger.Warn("cannot set TCP_NODELAY", zap.Error(err))
		}
	}

	pc := newPeekConn(conn)
	peeked, err := pc.peek(16)
	if err != nil {
		// A connection too short to carry a full preface is dropped and
		// logged, never treated as a panic.
		l.logger.Debug("short connection preface, dropping", zap.Error(err))
		conn.Close()
		return
	}

	isTLS := peeked[0] == 0x16 && peeked[1] == 0x03
	var served net.Conn = pc

	if isTLS {
		if tlsConfig == nil {
			l.logger.Warn("tls preface on a listener with no secured virtual hosts, dropping")
			conn.Close()
			return
		}
		tlsConn := tls.Server(pc, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			l.logger.Debug("tls handshake failed", zap.Error(err))
			conn.Close()
			return
		}
		served = tlsConn
	}

	switch l.cfg.Protocol() {
	case config.Http2:
		(&http2.Server{}).ServeConn(served, &http2.ServeConnOpts{Context: ctx, Handler: handler})
	case config.Http3:
		// http/3 is served exclusively by the datagram listener; a
		// stream listener configured for it accepts nothing itself.
		conn.Close()
	default:
		srv := &http.Server{Handler: handler, BaseContext: func(net.Listener) context.Context { return ctx }}
		srv.Serve(newSingleConnListener(served))
	}
}
