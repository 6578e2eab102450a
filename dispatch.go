package vetis

import (
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vetis/vetis/config"
	"github.com/vetis/vetis/internal/authority"
)

// RequestIDHeader is checked on incoming requests for an existing ID and
// set on every response with one, generated if absent (mirrors Caddy's
// request_id middleware).
const RequestIDHeader = "X-Request-Id"

type registryKey struct {
	hostname string
	port     uint16
}

// registry is the server-wide (hostname, port) -> VirtualHost map.
// Lookups happen on every request; registration happens once, before
// Start.
type registry struct {
	mu    sync.RWMutex
	hosts map[registryKey]*VirtualHost
}

func newRegistry() *registry {
	return &registry{hosts: map[registryKey]*VirtualHost{}}
}

func (r *registry) add(vh *VirtualHost) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts[registryKey{strings.ToLower(vh.Hostname()), vh.Port()}] = vh
}

func (r *registry) lookup(hostname string, port uint16) *VirtualHost {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hosts[registryKey{strings.ToLower(hostname), port}]
}

func (r *registry) all() []*VirtualHost {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*VirtualHost, 0, len(r.hosts))
	for _, vh := range r.hosts {
		out = append(out, vh)
	}
	return out
}

// dispatcher is the http.Handler every listener (stream or datagram)
// hands its accepted requests to: authority extraction, (authority, port)
// lookup, routing, and default-header splicing.
type dispatcher struct {
	port         uint16
	registry     *registry
	logger       *zap.Logger
	metrics      *serverMetrics
	maxBodyBytes int64
}

func (d *dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := requestID(r)
	w.Header().Set(RequestIDHeader, reqID)

	if d.maxBodyBytes > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, d.maxBodyBytes)
	}

	host := authority.Of(r)
	if host == "" {
		d.finish(w, r, TextResponse(http.StatusBadRequest, "Host not found in request"), reqID, start)
		return
	}

	vh := d.registry.lookup(host, d.port)
	if vh == nil {
		if d.logger != nil {
			d.logger.Info("virtual host not found", zap.String("authority", host), zap.Uint16("port", d.port), zap.String("request_id", reqID))
		}
		d.finish(w, r, TextResponse(http.StatusNotFound, "Virtual host not found"), reqID, start)
		return
	}

	resp := vh.Route(r)
	spliceDefaultHeaders(resp, vh.Config().DefaultHeaders, d.logger)
	d.finish(w, r, resp, reqID, start)
}

func (d *dispatcher) finish(w http.ResponseWriter, r *http.Request, resp *Response, reqID string, start time.Time) {
	if err := resp.WriteTo(w); err != nil && d.logger != nil {
		d.logger.Debug("error streaming response body", zap.Error(err), zap.String("request_id", reqID))
	}
	if d.metrics != nil {
		d.metrics.observe(r.Method, resp.StatusCode, time.Since(start))
	}
}

// requestID returns the request's existing X-Request-Id if it parses as a
// UUID, otherwise a freshly generated one.
func requestID(r *http.Request) string {
	if existing := r.Header.Get(RequestIDHeader); existing != "" {
		if _, err := uuid.Parse(existing); err == nil {
			return existing
		}
	}
	return uuid.New().String()
}

// spliceDefaultHeaders applies a virtual host's configured default
// headers to resp, skipping and logging anything that would not be a
// valid HTTP header.
func spliceDefaultHeaders(resp *Response, headers []config.Header, logger *zap.Logger) {
	for _, h := range headers {
		if !validHeaderToken(h.Name) || !validHeaderValue(h.Value) {
			if logger != nil {
				logger.Warn("invalid default header skipped", zap.String("name", h.Name))
			}
			continue
		}
		resp.Header.Set(h.Name, h.Value)
	}
}

func validHeaderToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r <= ' ' || r > '~' || strings.ContainsRune("()<>@,;:\\\"/[]?={}", r) {
			return false
		}
	}
	return true
}

func validHeaderValue(s string) bool {
	for _, r := range s {
		if r == '\r' || r == '\n' || (unicode.IsControl(r) && r != '\t') {
			return false
		}
	}
	return true
}
