package vetis

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/vetis/vetis/verrors"
)

// BuildTLSConfig returns a single tls.Config serving every registered
// virtual host that carries SecurityConfig: certificate selection keyed
// by SNI server name, TLS 1.3 only, and the caller's ALPN list (stream
// listeners offer {h2, http/1.1} or just {http/1.1}; the datagram
// listener offers only {h3}).
//
// Any virtual host with Security.ClientAuth set turns on
// RequireAndVerifyClientCert for the whole listener, with the client CA
// pool built from every such host's CACert.
func BuildTLSConfig(hosts []*VirtualHost, alpn []string) (*tls.Config, error) {
	certs := map[string]*tls.Certificate{}
	var clientCAs *x509.CertPool
	requireClientAuth := false

	for _, vh := range hosts {
		sec := vh.config.Security
		if sec == nil {
			continue
		}

		if _, err := x509.ParseCertificate(sec.Cert); err != nil {
			return nil, verrors.NewTLSStartError(fmt.Sprintf("parsing certificate for %s: %v", vh.Hostname(), err))
		}
		key, err := parsePrivateKey(sec.Key)
		if err != nil {
			return nil, verrors.NewTLSStartError(fmt.Sprintf("parsing key for %s: %v", vh.Hostname(), err))
		}

		chain := [][]byte{sec.Cert}
		if len(sec.CACert) > 0 {
			chain = append(chain, sec.CACert)
		}
		certs[strings.ToLower(vh.Hostname())] = &tls.Certificate{Certificate: chain, PrivateKey: key}

		if sec.ClientAuth {
			requireClientAuth = true
			if len(sec.CACert) > 0 {
				caCert, err := x509.ParseCertificate(sec.CACert)
				if err != nil {
					return nil, verrors.NewTLSStartError(fmt.Sprintf("parsing ca cert for %s: %v", vh.Hostname(), err))
				}
				if clientCAs == nil {
					clientCAs = x509.NewCertPool()
				}
				clientCAs.AddCert(caCert)
			}
		}
	}

	if len(certs) == 0 {
		return nil, verrors.NewTLSStartError("no virtual host in this listener group carries security material")
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS13,
		MaxVersion: tls.VersionTLS13,
		NextProtos: alpn,
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			if cert, ok := certs[strings.ToLower(hello.ServerName)]; ok {
				return cert, nil
			}
			if len(certs) == 1 {
				for _, cert := range certs {
					return cert, nil
				}
			}
			return nil, fmt.Errorf("no certificate for server name %q", hello.ServerName)
		},
	}
	if requireClientAuth {
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		cfg.ClientCAs = clientCAs
	}
	return cfg, nil
}

// parsePrivateKey tries the three DER encodings x509 understands, in the
// order openssl is most likely to have produced them.
func parsePrivateKey(der []byte) (interface{}, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unrecognized private key encoding")
}
