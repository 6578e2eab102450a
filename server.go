package vetis

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vetis/vetis/config"
	"github.com/vetis/vetis/verrors"
)

// DefaultMaxBodyBytes bounds request bodies when no explicit limit is set
// via SetMaxBodyBytes, in favor of a conservative default rather than an
// unbounded read.
const DefaultMaxBodyBytes int64 = 10 << 20

// listenerRunner is satisfied by StreamListener and DatagramListener.
type listenerRunner interface {
	Listen(ctx context.Context, tlsConfig *tls.Config) error
	Close() error
}

// Server is the top-level control surface: a set of listeners bound to a
// shared virtual host registry.
type Server struct {
	mu           sync.Mutex
	config       config.ServerConfig
	registry     *registry
	logger       *zap.Logger
	promReg      prometheus.Registerer
	maxBodyBytes int64

	running   bool
	cancel    context.CancelFunc
	listeners []listenerRunner
}

// NewServer constructs an idle Server for cfg. No listeners are bound
// until Start or Run is called.
func NewServer(cfg config.ServerConfig) *Server {
	return &Server{
		config:       cfg,
		registry:     newRegistry(),
		logger:       zap.NewNop(),
		promReg:      prometheus.DefaultRegisterer,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

// SetLogger attaches the logger used by the server, its listeners, and
// every virtual host registered on it after this call.
func (s *Server) SetLogger(l *zap.Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetMetricsRegisterer overrides the prometheus registerer requests are
// counted against. Pass nil to disable metrics registration entirely.
func (s *Server) SetMetricsRegisterer(r prometheus.Registerer) { s.promReg = r }

// SetMaxBodyBytes overrides DefaultMaxBodyBytes. Zero disables the cap.
func (s *Server) SetMaxBodyBytes(n int64) { s.maxBodyBytes = n }

// AddVirtualHost registers vh, keyed by (Hostname, Port). Calling this
// after Start returns an error rather than rebuilding the TLS resolver,
// since a resolver built from a stale host set would silently fail SNI
// lookups for the new host's certificate.
func (s *Server) AddVirtualHost(vh *VirtualHost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("cannot add virtual host %s after start: the tls resolver is fixed for the life of a running server", vh)
	}
	vh.SetLogger(s.logger)
	s.registry.add(vh)
	return nil
}

// Start materializes one listener per ListenerConfig and begins
// accepting connections on each. Start fails with
// verrors.ErrNoVirtualHosts if no virtual host has been registered.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	hosts := s.registry.all()
	if len(hosts) == 0 {
		return verrors.ErrNoVirtualHosts
	}

	ctx, cancel := context.WithCancel(context.Background())

	var runners []listenerRunner
	for _, lc := range s.config.Listeners {
		runner, err := s.startListener(ctx, lc, hosts)
		if err != nil {
			cancel()
			for _, r := range runners {
				r.Close()
			}
			return err
		}
		runners = append(runners, runner)
		s.logger.Info("listener started", zap.Uint16("port", lc.Port()), zap.String("protocol", lc.Protocol().String()))
	}

	s.cancel = cancel
	s.listeners = runners
	s.running = true
	return nil
}

func (s *Server) startListener(ctx context.Context, lc config.ListenerConfig, hosts []*VirtualHost) (listenerRunner, error) {
	alpn := []string{"http/1.1"}
	switch lc.Protocol() {
	case config.Http2:
		alpn = []string{"h2", "http/1.1"}
	case config.Http3:
		alpn = []string{"h3"}
	}

	tlsConfig, tlsErr := BuildTLSConfig(hosts, alpn)
	hasTLS := tlsErr == nil

	if lc.Protocol() == config.Http3 {
		if !hasTLS {
			return nil, tlsErr
		}
		dl := NewDatagramListener(lc, s.registry, s.logger, s.newMetrics(lc), s.maxBodyBytes)
		if err := dl.Listen(ctx, tlsConfig); err != nil {
			return nil, err
		}
		return dl, nil
	}

	sl := NewStreamListener(lc, s.registry, s.logger, s.newMetrics(lc), s.maxBodyBytes)
	var cfgToUse *tls.Config
	if hasTLS {
		cfgToUse = tlsConfig
	}
	if err := sl.Listen(ctx, cfgToUse); err != nil {
		return nil, err
	}
	return sl, nil
}

func (s *Server) newMetrics(lc config.ListenerConfig) *serverMetrics {
	return newServerMetrics(s.promReg, fmt.Sprintf("%d", lc.Port()))
}

// Stop cancels every listener task and returns the server to the idle
// state. Calling Stop while idle fails with verrors.ErrNoInstances.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return verrors.ErrNoInstances
	}

	s.cancel()

	var firstErr error
	for _, l := range s.listeners {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.listeners = nil
	s.running = false
	return firstErr
}

// Run starts the server, blocks until SIGINT or SIGTERM, then stops it.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	signal.Stop(sigCh)
	return s.Stop()
}
