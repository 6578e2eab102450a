package vetis

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"

	"github.com/quic-go/quic-go/http3"
	"go.uber.org/zap"

	"github.com/vetis/vetis/config"
	"github.com/vetis/vetis/verrors"
)

// DatagramListener is an HTTP/3 endpoint over QUIC, restricted to ALPN
// "h3". TLS is mandatory; Server.Start refuses to create one when no
// virtual host in the group carries security material.
//
// quic-go/http3's Server already hands each stream a normal *http.Request
// with Body populated from the request's DATA frames, so there is no
// separate frame-collection step that could drop a POST/PUT body.
type DatagramListener struct {
	cfg          config.ListenerConfig
	registry     *registry
	logger       *zap.Logger
	metrics      *serverMetrics
	maxBodyBytes int64

	srv   *http3.Server
	pconn net.PacketConn
}

// NewDatagramListener constructs a DatagramListener bound to cfg's
// interface/port once Listen is called.
func NewDatagramListener(cfg config.ListenerConfig, reg *registry, logger *zap.Logger, metrics *serverMetrics, maxBodyBytes int64) *DatagramListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatagramListener{cfg: cfg, registry: reg, logger: logger, metrics: metrics, maxBodyBytes: maxBodyBytes}
}

// Listen binds a UDP socket and starts serving HTTP/3 requests on it in
// the background.
func (l *DatagramListener) Listen(ctx context.Context, tlsConfig *tls.Config) error {
	if tlsConfig == nil {
		return verrors.NewTLSStartError("http/3 listener requires tls configuration")
	}

	addr := net.JoinHostPort(config.ResolveInterface(l.cfg.Interface()).String(), strconv.Itoa(int(l.cfg.Port())))
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return verrors.NewBindError(err.Error())
	}
	pconn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return verrors.NewBindError(err.Error())
	}

	h3tls := tlsConfig.Clone()
	h3tls.NextProtos = []string{"h3"}

	handler := &dispatcher{port: l.cfg.Port(), registry: l.registry, logger: l.logger, metrics: l.metrics, maxBodyBytes: l.maxBodyBytes}

	l.srv = &http3.Server{
		Handler:   handler,
		TLSConfig: h3tls,
	}
	l.pconn = pconn

	go func() {
		if err := l.srv.Serve(pconn); err != nil {
			l.logger.Debug("http/3 server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		l.srv.Close()
		pconn.Close()
	}()
	return nil
}

// Addr returns the listener's bound network address. It is nil until
// Listen has returned successfully.
func (l *DatagramListener) Addr() net.Addr {
	if l.pconn == nil {
		return nil
	}
	return l.pconn.LocalAddr()
}

// Close shuts the HTTP/3 server and its UDP socket down.
func (l *DatagramListener) Close() error {
	if l.srv == nil {
		return nil
	}
	err := l.srv.Close()
	if l.pconn != nil {
		l.pconn.Close()
	}
	return err
}
