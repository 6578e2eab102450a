// Package verrors defines the structured error taxonomy shared by every
// vetis package. Errors are nested by concern (config, startup, per-request
// routing) so a caller can use errors.As to recover the specific kind
// without string matching, and the dispatcher can map a per-request error
// to an HTTP status without the lower layers knowing about HTTP at all.
package verrors

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid configuration value caught at build time.
type ConfigError struct {
	Kind    string // "virtual_host", "path", or "security"
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error (%s): %s", e.Kind, e.Message)
}

// NewVirtualHostConfigError reports an invalid VirtualHostConfig.
func NewVirtualHostConfigError(msg string) error {
	return &ConfigError{Kind: "virtual_host", Message: msg}
}

// NewPathConfigError reports an invalid StaticPathConfig/ProxyPathConfig.
func NewPathConfigError(msg string) error {
	return &ConfigError{Kind: "path", Message: msg}
}

// NewSecurityConfigError reports invalid certificate/key material.
func NewSecurityConfigError(msg string) error {
	return &ConfigError{Kind: "security", Message: msg}
}

// BindError reports that a listener could not acquire its socket.
type BindError struct{ Message string }

func (e *BindError) Error() string { return "bind: " + e.Message }

// NewBindError wraps a listen/bind failure.
func NewBindError(msg string) error { return &BindError{Message: msg} }

// StartError reports that the server failed to start, nested by cause.
type StartError struct {
	Tls     string // non-empty if TLS material could not be parsed or installed
	Message string
}

func (e *StartError) Error() string {
	if e.Tls != "" {
		return "start: tls: " + e.Tls
	}
	return "start: " + e.Message
}

// NewTLSStartError wraps a TLS resolver construction failure.
func NewTLSStartError(msg string) error { return &StartError{Tls: msg} }

// Lifecycle misuse sentinels: start() with no registered virtual hosts,
// or stop() while idle.
var (
	ErrNoVirtualHosts = fmt.Errorf("no virtual hosts registered")
	ErrNoInstances    = fmt.Errorf("no running server instances")
)

// VirtualHostErrorKind distinguishes the per-request failure modes a
// HostPath.Handle can report to the router.
type VirtualHostErrorKind int

const (
	// InvalidPath means the router or path handler could not resolve the
	// requested URI; mapped to a 404 status-page render.
	InvalidPath VirtualHostErrorKind = iota
	// Proxy means the upstream could not be reached or returned malformed
	// framing; mapped to 502. Upstream timeouts are not told apart and
	// map to 502 as well.
	Proxy
	// File means the requested static file does not exist or could not be
	// opened; mapped to 404.
	File
	// Auth means the static path's auth hook rejected the request; mapped
	// to 401.
	Auth
	// Handler means the user-supplied handler itself reported failure;
	// mapped to 500.
	Handler
)

func (k VirtualHostErrorKind) String() string {
	switch k {
	case InvalidPath:
		return "invalid_path"
	case Proxy:
		return "proxy"
	case File:
		return "file"
	case Auth:
		return "auth"
	case Handler:
		return "handler"
	default:
		return "unknown"
	}
}

// VirtualHostError is the per-request error surfaced by routing and by
// HostPath implementations. It is caught at the dispatcher and mapped to
// an HTTP response; it never panics and never escapes a connection.
type VirtualHostError struct {
	Kind    VirtualHostErrorKind
	Message string
}

func (e *VirtualHostError) Error() string {
	return fmt.Sprintf("virtual host error (%s): %s", e.Kind, e.Message)
}

// NewInvalidPathError reports that no path in the trie matched the request.
func NewInvalidPathError(msg string) error {
	return &VirtualHostError{Kind: InvalidPath, Message: msg}
}

// NewProxyError reports an upstream failure from the reverse proxy path.
func NewProxyError(msg string) error {
	return &VirtualHostError{Kind: Proxy, Message: msg}
}

// NewFileError reports a missing or unreadable static file.
func NewFileError(msg string) error {
	return &VirtualHostError{Kind: File, Message: msg}
}

// NewAuthError reports a static path auth hook rejection.
func NewAuthError(msg string) error {
	return &VirtualHostError{Kind: Auth, Message: msg}
}

// NewHandlerError reports that a user-supplied handler returned failure.
func NewHandlerError(msg string) error {
	return &VirtualHostError{Kind: Handler, Message: msg}
}

// AsVirtualHostError unwraps err into a *VirtualHostError, if it is one.
func AsVirtualHostError(err error) (*VirtualHostError, bool) {
	var vhErr *VirtualHostError
	ok := errors.As(err, &vhErr)
	return vhErr, ok
}
