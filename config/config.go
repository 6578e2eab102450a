// Package config provides the fluent builder API for vetis server, listener,
// virtual host, and path configuration, and the TOML config-file loader.
// Configuration values are immutable once built; validation happens in
// Build(), not at the call sites that later consume the value.
package config

import (
	"net"

	"github.com/vetis/vetis/verrors"
)

// Protocol is the wire protocol a ListenerConfig drives.
type Protocol int

const (
	// Http1 serves HTTP/1.1, with or without TLS depending on what the
	// stream listener detects on each connection.
	Http1 Protocol = iota
	// Http2 serves HTTP/2 over TLS only.
	Http2
	// Http3 serves HTTP/3 over QUIC; TLS is mandatory.
	Http3
)

func (p Protocol) String() string {
	switch p {
	case Http1:
		return "http1"
	case Http2:
		return "http2"
	case Http3:
		return "http3"
	default:
		return "unknown"
	}
}

// ListenerConfig describes a single bound socket: its interface, port,
// wire protocol, and whether TLS is expected on it.
type ListenerConfig struct {
	port      uint16
	iface     string
	protocol  Protocol
	ssl       bool
}

// Port returns the configured listener port.
func (c ListenerConfig) Port() uint16 { return c.port }

// Interface returns the configured bind interface.
func (c ListenerConfig) Interface() string { return c.iface }

// Protocol returns the configured wire protocol.
func (c ListenerConfig) Protocol() Protocol { return c.protocol }

// SSL reports whether TLS is advisory-enabled for this listener. For
// stream listeners this is advisory only (actual TLS use is detected per
// connection); for Http3 listeners TLS is mandatory regardless of this
// value.
func (c ListenerConfig) SSL() bool { return c.ssl }

// ListenerConfigBuilder builds a ListenerConfig.
type ListenerConfigBuilder struct {
	c ListenerConfig
}

// NewListenerConfig starts a ListenerConfigBuilder with vetis's defaults:
// port 8080, interface "0.0.0.0", protocol Http1, TLS disabled.
func NewListenerConfig() *ListenerConfigBuilder {
	return &ListenerConfigBuilder{c: ListenerConfig{port: 8080, iface: "0.0.0.0", protocol: Http1}}
}

// Port sets the listener's port.
func (b *ListenerConfigBuilder) Port(port uint16) *ListenerConfigBuilder {
	b.c.port = port
	return b
}

// Interface sets the bind interface (IPv4, IPv6, or "0.0.0.0").
func (b *ListenerConfigBuilder) Interface(iface string) *ListenerConfigBuilder {
	b.c.iface = iface
	return b
}

// Protocol sets the wire protocol this listener drives.
func (b *ListenerConfigBuilder) Protocol(p Protocol) *ListenerConfigBuilder {
	b.c.protocol = p
	return b
}

// SSL sets the advisory TLS flag.
func (b *ListenerConfigBuilder) SSL(ssl bool) *ListenerConfigBuilder {
	b.c.ssl = ssl
	return b
}

// Build returns the immutable ListenerConfig.
func (b *ListenerConfigBuilder) Build() (ListenerConfig, error) {
	return b.c, nil
}

// ServerConfig is the ordered list of listeners a Server will bind.
type ServerConfig struct {
	Listeners []ListenerConfig
}

// ServerConfigBuilder builds a ServerConfig.
type ServerConfigBuilder struct {
	c ServerConfig
}

// NewServerConfig starts a ServerConfigBuilder with no listeners.
func NewServerConfig() *ServerConfigBuilder {
	return &ServerConfigBuilder{}
}

// AddListener appends a listener to the server configuration.
func (b *ServerConfigBuilder) AddListener(l ListenerConfig) *ServerConfigBuilder {
	b.c.Listeners = append(b.c.Listeners, l)
	return b
}

// Build returns the immutable ServerConfig.
func (b *ServerConfigBuilder) Build() (ServerConfig, error) {
	return b.c, nil
}

// SecurityConfig carries DER-encoded certificate and key material for a
// virtual host. The certificate chain presented during the TLS handshake
// is [Cert] optionally extended by CACert.
type SecurityConfig struct {
	Cert       []byte
	Key        []byte
	CACert     []byte
	ClientAuth bool
}

// SecurityConfigBuilder builds a SecurityConfig.
type SecurityConfigBuilder struct {
	c SecurityConfig
}

// NewSecurityConfig starts a SecurityConfigBuilder.
func NewSecurityConfig() *SecurityConfigBuilder { return &SecurityConfigBuilder{} }

// Cert sets the DER-encoded leaf certificate.
func (b *SecurityConfigBuilder) Cert(der []byte) *SecurityConfigBuilder {
	b.c.Cert = der
	return b
}

// Key sets the DER-encoded private key.
func (b *SecurityConfigBuilder) Key(der []byte) *SecurityConfigBuilder {
	b.c.Key = der
	return b
}

// CACert sets an optional DER-encoded CA certificate appended to the chain.
func (b *SecurityConfigBuilder) CACert(der []byte) *SecurityConfigBuilder {
	b.c.CACert = der
	return b
}

// ClientAuth requests mutual TLS against CACert.
func (b *SecurityConfigBuilder) ClientAuth(enabled bool) *SecurityConfigBuilder {
	b.c.ClientAuth = enabled
	return b
}

// Build validates and returns the immutable SecurityConfig.
func (b *SecurityConfigBuilder) Build() (SecurityConfig, error) {
	if len(b.c.Cert) == 0 {
		return SecurityConfig{}, verrors.NewSecurityConfigError("cert cannot be empty")
	}
	if len(b.c.Key) == 0 {
		return SecurityConfig{}, verrors.NewSecurityConfigError("key cannot be empty")
	}
	return b.c, nil
}

// Header is an ordered (name, value) pair applied to every response from a
// virtual host.
type Header struct {
	Name  string
	Value string
}

// VirtualHostConfig is the static configuration of a virtual host, keyed
// at runtime by (Hostname, Port).
type VirtualHostConfig struct {
	Hostname       string
	Port           uint16
	DefaultHeaders []Header
	Security       *SecurityConfig
	StatusPages    map[int]string
}

// VirtualHostConfigBuilder builds a VirtualHostConfig.
type VirtualHostConfigBuilder struct {
	c VirtualHostConfig
}

// NewVirtualHostConfig starts a VirtualHostConfigBuilder.
func NewVirtualHostConfig() *VirtualHostConfigBuilder {
	return &VirtualHostConfigBuilder{c: VirtualHostConfig{StatusPages: map[int]string{}}}
}

// Hostname sets the virtual host's hostname.
func (b *VirtualHostConfigBuilder) Hostname(hostname string) *VirtualHostConfigBuilder {
	b.c.Hostname = hostname
	return b
}

// Port sets the virtual host's port (must match the owning listener).
func (b *VirtualHostConfigBuilder) Port(port uint16) *VirtualHostConfigBuilder {
	b.c.Port = port
	return b
}

// AddDefaultHeader appends a header spliced into every response this
// virtual host returns.
func (b *VirtualHostConfigBuilder) AddDefaultHeader(name, value string) *VirtualHostConfigBuilder {
	b.c.DefaultHeaders = append(b.c.DefaultHeaders, Header{Name: name, Value: value})
	return b
}

// Security attaches TLS certificate material to the virtual host.
func (b *VirtualHostConfigBuilder) Security(s SecurityConfig) *VirtualHostConfigBuilder {
	b.c.Security = &s
	return b
}

// StatusPage registers a file to serve for a given response status code.
func (b *VirtualHostConfigBuilder) StatusPage(code int, path string) *VirtualHostConfigBuilder {
	b.c.StatusPages[code] = path
	return b
}

// Build validates and returns the immutable VirtualHostConfig.
func (b *VirtualHostConfigBuilder) Build() (VirtualHostConfig, error) {
	if b.c.Hostname == "" {
		return VirtualHostConfig{}, verrors.NewVirtualHostConfigError("hostname cannot be empty")
	}
	return b.c, nil
}

// StaticPathConfig configures a filesystem-backed path.
type StaticPathConfig struct {
	URI        string
	Extensions string // regular expression matched against the request tail
	Directory  string
	IndexFiles []string
	Auth       func(header map[string][]string) error
}

// StaticPathConfigBuilder builds a StaticPathConfig.
type StaticPathConfigBuilder struct {
	c StaticPathConfig
}

// NewStaticPathConfig starts a StaticPathConfigBuilder.
func NewStaticPathConfig() *StaticPathConfigBuilder { return &StaticPathConfigBuilder{} }

// URI sets the path's URI prefix.
func (b *StaticPathConfigBuilder) URI(uri string) *StaticPathConfigBuilder {
	b.c.URI = uri
	return b
}

// Extensions sets the allow-list regular expression.
func (b *StaticPathConfigBuilder) Extensions(re string) *StaticPathConfigBuilder {
	b.c.Extensions = re
	return b
}

// Directory sets the filesystem root to serve from.
func (b *StaticPathConfigBuilder) Directory(dir string) *StaticPathConfigBuilder {
	b.c.Directory = dir
	return b
}

// IndexFiles sets the candidate index file names.
func (b *StaticPathConfigBuilder) IndexFiles(files []string) *StaticPathConfigBuilder {
	b.c.IndexFiles = files
	return b
}

// Auth sets an optional pre-request auth hook.
func (b *StaticPathConfigBuilder) Auth(hook func(header map[string][]string) error) *StaticPathConfigBuilder {
	b.c.Auth = hook
	return b
}

// Build validates and returns the immutable StaticPathConfig.
func (b *StaticPathConfigBuilder) Build() (StaticPathConfig, error) {
	if b.c.URI == "" {
		return StaticPathConfig{}, verrors.NewPathConfigError("uri cannot be empty")
	}
	if b.c.Extensions == "" {
		return StaticPathConfig{}, verrors.NewPathConfigError("extensions cannot be empty")
	}
	if b.c.Directory == "" {
		return StaticPathConfig{}, verrors.NewPathConfigError("directory cannot be empty")
	}
	return b.c, nil
}

// ProxyPathConfig configures a reverse-proxy path.
type ProxyPathConfig struct {
	URI    string
	Target string // absolute URL of the upstream origin
}

// ProxyPathConfigBuilder builds a ProxyPathConfig.
type ProxyPathConfigBuilder struct {
	c ProxyPathConfig
}

// NewProxyPathConfig starts a ProxyPathConfigBuilder.
func NewProxyPathConfig() *ProxyPathConfigBuilder { return &ProxyPathConfigBuilder{} }

// URI sets the path's URI prefix.
func (b *ProxyPathConfigBuilder) URI(uri string) *ProxyPathConfigBuilder {
	b.c.URI = uri
	return b
}

// Target sets the upstream origin URL.
func (b *ProxyPathConfigBuilder) Target(target string) *ProxyPathConfigBuilder {
	b.c.Target = target
	return b
}

// Build validates and returns the immutable ProxyPathConfig.
func (b *ProxyPathConfigBuilder) Build() (ProxyPathConfig, error) {
	if b.c.URI == "" {
		return ProxyPathConfig{}, verrors.NewPathConfigError("uri cannot be empty")
	}
	if b.c.Target == "" {
		return ProxyPathConfig{}, verrors.NewPathConfigError("target cannot be empty")
	}
	return b.c, nil
}

// ResolveInterface parses iface as IPv4 first, then IPv6, falling back to
// 0.0.0.0 if neither parses.
func ResolveInterface(iface string) net.IP {
	if ip := net.ParseIP(iface); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
		return ip
	}
	return net.IPv4zero
}
