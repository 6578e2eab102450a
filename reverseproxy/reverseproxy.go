// Package reverseproxy implements the reverse-proxy path kind: forwarding
// a request under a URI prefix to a fixed upstream origin, reusing a
// single process-wide HTTP client across every Path.
package reverseproxy

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vetis/vetis"
	"github.com/vetis/vetis/config"
	"github.com/vetis/vetis/verrors"
)

var (
	clientOnce sync.Once
	client     *http.Client
)

// sharedClient returns the process-wide pooled HTTP client every Path
// forwards through, initialized once on first use. Its lifetime is the
// process, with no explicit teardown.
func sharedClient() *http.Client {
	clientOnce.Do(func() {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 30 * time.Second,
		}
	})
	return client
}

// Path forwards requests under its URI prefix to a fixed upstream
// origin, satisfying vetis.Path structurally.
type Path struct {
	uri    string
	target string
	logger *zap.Logger
}

// New constructs a Path from cfg. cfg.Target is an absolute URL; a
// trailing slash is stripped so target+tail never produces a doubled
// separator.
func New(cfg config.ProxyPathConfig) *Path {
	return &Path{uri: cfg.URI, target: strings.TrimSuffix(cfg.Target, "/"), logger: zap.NewNop()}
}

// SetLogger attaches a logger used to report upstream failures.
func (p *Path) SetLogger(l *zap.Logger) {
	if l != nil {
		p.logger = l
	}
}

// URI returns the path's URI prefix.
func (p *Path) URI() string { return p.uri }

// Handle forwards the request's method, headers, and body to
// target+tail, adapting the upstream's response into a *vetis.Response
// whose body streams directly from the upstream connection without
// buffering. An upstream failure is reported as a Proxy kind
// VirtualHostError, which the router maps to 502.
func (p *Path) Handle(r *http.Request, tail string) (*vetis.Response, error) {
	targetURL := p.target + tail
	if r.URL.RawQuery != "" {
		targetURL += "?" + r.URL.RawQuery
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, r.Body)
	if err != nil {
		return nil, verrors.NewProxyError(fmt.Sprintf("building upstream request: %v", err))
	}
	outReq.Header = r.Header.Clone()

	resp, err := sharedClient().Do(outReq)
	if err != nil {
		p.logger.Error("upstream request failed", zap.String("target", targetURL), zap.Error(err))
		return nil, verrors.NewProxyError(err.Error())
	}

	out := vetis.NewResponse(resp.StatusCode)
	for k, vv := range resp.Header {
		for _, v := range vv {
			out.Header.Add(k, v)
		}
	}
	out.Body = vetis.NewStreamBody(resp.Body, resp.ContentLength, resp.ContentLength >= 0)
	return out, nil
}
