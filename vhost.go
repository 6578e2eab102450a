package vetis

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vetis/vetis/config"
	"github.com/vetis/vetis/verrors"
)

// pathTrieNode is one node of the longest-prefix path trie a VirtualHost
// routes against, adapted from a host+path vhost trie to index on URI
// path alone: host/port selection happens one level up, in the
// server-wide registry, since each (hostname, port) pair maps to at most
// one virtual host.
type pathTrieNode struct {
	edges  map[byte]*pathTrieNode
	path   Path   // set only on a node where a registered path terminates
	prefix string // the full URI this node terminates, for tail computation
}

func newPathTrieNode() *pathTrieNode {
	return &pathTrieNode{edges: map[byte]*pathTrieNode{}}
}

func (n *pathTrieNode) insert(remaining, original string, p Path) {
	if remaining == "" {
		n.path = p
		n.prefix = original
		return
	}
	ch := remaining[0]
	next, ok := n.edges[ch]
	if !ok {
		next = newPathTrieNode()
		n.edges[ch] = next
	}
	next.insert(remaining[1:], original, p)
}

// matchAncestor walks remaining one byte at a time, returning the deepest
// node reached along the way that terminates a registered path. A path
// whose URI is itself a prefix of a longer registered path never shadows
// that longer path: both are reachable, and the longest match wins.
func (n *pathTrieNode) matchAncestor(remaining string) *pathTrieNode {
	var longest *pathTrieNode
	cur := n
	for i := 0; i < len(remaining); i++ {
		next, ok := cur.edges[remaining[i]]
		if !ok {
			break
		}
		cur = next
		if cur.path != nil {
			longest = cur
		}
	}
	return longest
}

// VirtualHost binds a hostname and port to a set of routed paths, default
// response headers, optional TLS material, and per-status-code error
// pages.
type VirtualHost struct {
	config config.VirtualHostConfig
	paths  *pathTrieNode
	logger *zap.Logger
}

// NewVirtualHost constructs an empty VirtualHost from cfg. Paths are
// added with AddPath before the owning Server is started.
func NewVirtualHost(cfg config.VirtualHostConfig) *VirtualHost {
	return &VirtualHost{config: cfg, paths: newPathTrieNode(), logger: zap.NewNop()}
}

// SetLogger attaches a logger, used for routing and status-page failures.
func (vh *VirtualHost) SetLogger(l *zap.Logger) {
	if l != nil {
		vh.logger = l
	}
}

// AddPath registers p under its own URI prefix.
func (vh *VirtualHost) AddPath(p Path) {
	vh.paths.insert(p.URI(), p.URI(), p)
}

// Config returns the virtual host's static configuration.
func (vh *VirtualHost) Config() config.VirtualHostConfig { return vh.config }

// Hostname returns the virtual host's configured hostname.
func (vh *VirtualHost) Hostname() string { return vh.config.Hostname }

// Port returns the virtual host's configured port.
func (vh *VirtualHost) Port() uint16 { return vh.config.Port }

// IsSecure reports whether the virtual host carries TLS certificate
// material.
func (vh *VirtualHost) IsSecure() bool { return vh.config.Security != nil }

// Route resolves r against the path trie and always returns a final
// Response: a 404 status page if no path matches, or whatever the
// matched path's error maps to if it fails.
func (vh *VirtualHost) Route(r *http.Request) *Response {
	node := vh.paths.matchAncestor(r.URL.Path)
	if node == nil {
		return vh.serveStatusPage(http.StatusNotFound, "Not Found")
	}

	tail := strings.TrimPrefix(r.URL.Path, node.prefix)

	resp, err := node.path.Handle(r, tail)
	if err != nil {
		return vh.handleError(err)
	}
	return resp
}

func (vh *VirtualHost) handleError(err error) *Response {
	vhErr, ok := verrors.AsVirtualHostError(err)
	if !ok {
		vh.logger.Error("unclassified path error", zap.Error(err))
		return TextResponse(http.StatusInternalServerError, "Internal Server Error")
	}

	switch vhErr.Kind {
	case verrors.InvalidPath, verrors.File:
		return vh.serveStatusPage(http.StatusNotFound, "Not Found")
	case verrors.Auth:
		return TextResponse(http.StatusUnauthorized, "Unauthorized")
	case verrors.Proxy:
		vh.logger.Error("upstream proxy failure", zap.String("host", vh.Hostname()), zap.String("detail", vhErr.Message))
		return TextResponse(http.StatusBadGateway, "Bad Gateway")
	case verrors.Handler:
		vh.logger.Error("handler failure", zap.String("host", vh.Hostname()), zap.String("detail", vhErr.Message))
		return TextResponse(http.StatusInternalServerError, "Internal Server Error")
	default:
		return TextResponse(http.StatusInternalServerError, "Internal Server Error")
	}
}

// serveStatusPage renders the configured file for code, falling back to a
// short textual body of fallback at the same status code if none is
// configured or the configured file cannot be read.
func (vh *VirtualHost) serveStatusPage(code int, fallback string) *Response {
	page, ok := vh.config.StatusPages[code]
	if !ok {
		return TextResponse(code, fallback)
	}

	data, err := os.ReadFile(page)
	if err != nil {
		vh.logger.Warn("status page configured but unreadable", zap.Int("code", code), zap.String("path", page), zap.Error(err))
		return TextResponse(code, fallback)
	}

	resp := NewResponse(code)
	if mt, err := mimetype.DetectFile(page); err == nil {
		resp.Header.Set("Content-Type", mt.String())
	} else {
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	}
	resp.Body = NewBufferBody(data)
	return resp
}

// String renders a short debug identity for the virtual host.
func (vh *VirtualHost) String() string {
	return fmt.Sprintf("%s:%d", vh.Hostname(), vh.Port())
}
