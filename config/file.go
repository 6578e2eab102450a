package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultConfigPath is the config file vetis loads when -c/--config is
// not given.
const DefaultConfigPath = "vetis.toml"

// fileListener mirrors ListenerConfig's fields in their TOML-friendly form.
type fileListener struct {
	Port      uint16 `toml:"port"`
	Interface string `toml:"interface"`
	Protocol  string `toml:"protocol"`
	SSL       bool   `toml:"ssl"`
}

type fileSecurity struct {
	CertFile   string `toml:"cert_file"`
	KeyFile    string `toml:"key_file"`
	CACertFile string `toml:"ca_cert_file"`
	ClientAuth bool   `toml:"client_auth"`
}

type fileStaticPath struct {
	URI        string   `toml:"uri"`
	Extensions string   `toml:"extensions"`
	Directory  string   `toml:"directory"`
	IndexFiles []string `toml:"index_files"`
}

type fileProxyPath struct {
	URI    string `toml:"uri"`
	Target string `toml:"target"`
}

type fileVirtualHost struct {
	Hostname       string            `toml:"hostname"`
	Port           uint16            `toml:"port"`
	DefaultHeaders map[string]string `toml:"default_headers"`
	Security       *fileSecurity     `toml:"security"`
	StatusPages    map[string]string `toml:"status_pages"`
	StaticPaths    []fileStaticPath  `toml:"static_paths"`
	ProxyPaths     []fileProxyPath   `toml:"proxy_paths"`
}

type fileLog struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type fileServer struct {
	Listeners []fileListener `toml:"listeners"`
}

type fileConfig struct {
	Server       fileServer        `toml:"server"`
	Log          fileLog           `toml:"log"`
	VirtualHosts []fileVirtualHost `toml:"virtual_hosts"`
}

// LogConfig is the parsed [log] table of a vetis.toml file.
type LogConfig struct {
	Level  string
	Format string
}

func protocolFromString(s string) (Protocol, error) {
	switch s {
	case "", "http1":
		return Http1, nil
	case "http2":
		return Http2, nil
	case "http3":
		return Http3, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}

// LoadFile parses a vetis.toml file into a ServerConfig, its virtual host
// configurations, their static/proxy path configurations, and the log
// table, using the same builders (and therefore the same validation) the
// library's programmatic API uses.
func LoadFile(path string) (ServerConfig, []VirtualHostConfig, map[string][]StaticPathConfig, map[string][]ProxyPathConfig, LogConfig, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return ServerConfig{}, nil, nil, nil, LogConfig{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	sb := NewServerConfig()
	for _, fl := range fc.Server.Listeners {
		proto, err := protocolFromString(fl.Protocol)
		if err != nil {
			return ServerConfig{}, nil, nil, nil, LogConfig{}, fmt.Errorf("listener on port %d: %w", fl.Port, err)
		}
		lc, err := NewListenerConfig().
			Port(fl.Port).
			Interface(fl.Interface).
			Protocol(proto).
			SSL(fl.SSL).
			Build()
		if err != nil {
			return ServerConfig{}, nil, nil, nil, LogConfig{}, err
		}
		sb.AddListener(lc)
	}
	serverConfig, err := sb.Build()
	if err != nil {
		return ServerConfig{}, nil, nil, nil, LogConfig{}, err
	}

	var vhosts []VirtualHostConfig
	staticPaths := map[string][]StaticPathConfig{}
	proxyPaths := map[string][]ProxyPathConfig{}

	for _, fv := range fc.VirtualHosts {
		vb := NewVirtualHostConfig().Hostname(fv.Hostname).Port(fv.Port)
		for name, value := range fv.DefaultHeaders {
			vb.AddDefaultHeader(name, value)
		}
		for codeStr, page := range fv.StatusPages {
			var code int
			if _, err := fmt.Sscanf(codeStr, "%d", &code); err != nil {
				return ServerConfig{}, nil, nil, nil, LogConfig{}, fmt.Errorf("status page key %q is not a status code", codeStr)
			}
			vb.StatusPage(code, page)
		}
		if fv.Security != nil {
			cert, err := os.ReadFile(fv.Security.CertFile)
			if err != nil {
				return ServerConfig{}, nil, nil, nil, LogConfig{}, fmt.Errorf("reading cert for %s: %w", fv.Hostname, err)
			}
			key, err := os.ReadFile(fv.Security.KeyFile)
			if err != nil {
				return ServerConfig{}, nil, nil, nil, LogConfig{}, fmt.Errorf("reading key for %s: %w", fv.Hostname, err)
			}
			secBuilder := NewSecurityConfig().Cert(cert).Key(key).ClientAuth(fv.Security.ClientAuth)
			if fv.Security.CACertFile != "" {
				ca, err := os.ReadFile(fv.Security.CACertFile)
				if err != nil {
					return ServerConfig{}, nil, nil, nil, LogConfig{}, fmt.Errorf("reading ca cert for %s: %w", fv.Hostname, err)
				}
				secBuilder.CACert(ca)
			}
			sec, err := secBuilder.Build()
			if err != nil {
				return ServerConfig{}, nil, nil, nil, LogConfig{}, fmt.Errorf("security config for %s: %w", fv.Hostname, err)
			}
			vb.Security(sec)
		}

		vhc, err := vb.Build()
		if err != nil {
			return ServerConfig{}, nil, nil, nil, LogConfig{}, err
		}
		vhosts = append(vhosts, vhc)

		key := fmt.Sprintf("%s:%d", fv.Hostname, fv.Port)
		for _, fs := range fv.StaticPaths {
			spc, err := NewStaticPathConfig().
				URI(fs.URI).
				Extensions(fs.Extensions).
				Directory(fs.Directory).
				IndexFiles(fs.IndexFiles).
				Build()
			if err != nil {
				return ServerConfig{}, nil, nil, nil, LogConfig{}, fmt.Errorf("static path %s on %s: %w", fs.URI, key, err)
			}
			staticPaths[key] = append(staticPaths[key], spc)
		}
		for _, fp := range fv.ProxyPaths {
			ppc, err := NewProxyPathConfig().URI(fp.URI).Target(fp.Target).Build()
			if err != nil {
				return ServerConfig{}, nil, nil, nil, LogConfig{}, fmt.Errorf("proxy path %s on %s: %w", fp.URI, key, err)
			}
			proxyPaths[key] = append(proxyPaths[key], ppc)
		}
	}

	return serverConfig, vhosts, staticPaths, proxyPaths, LogConfig{Level: fc.Log.Level, Format: fc.Log.Format}, nil
}
