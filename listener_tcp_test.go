package vetis

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vetis/vetis/config"
)

// selfSignedCert returns a freshly generated self-signed certificate and
// key for commonName, DER-encoded the way config.SecurityConfig expects.
func selfSignedCert(t *testing.T, commonName string) (certDER, keyDER []byte) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err = x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err = x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return certDER, keyDER
}

// securedVHost builds a VirtualHost for hostname carrying a self-signed
// certificate, with a single handler path at "/" returning body.
func securedVHost(t *testing.T, hostname string, port uint16, body string) *VirtualHost {
	t.Helper()
	cert, key := selfSignedCert(t, hostname)
	sec, err := config.NewSecurityConfig().Cert(cert).Key(key).Build()
	if err != nil {
		t.Fatal(err)
	}
	vhc, err := config.NewVirtualHostConfig().Hostname(hostname).Port(port).Security(sec).Build()
	if err != nil {
		t.Fatal(err)
	}
	vh := NewVirtualHost(vhc)
	vh.AddPath(NewHandlerPath("/", func(r *http.Request) (*Response, error) {
		return TextResponse(http.StatusOK, body), nil
	}))
	return vh
}

// rawHTTPGet writes a bare GET request for host over conn and parses the
// response, closing the connection afterward.
func rawHTTPGet(t *testing.T, conn net.Conn, host string) *http.Response {
	t.Helper()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: " + host + "\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatal(err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestStreamListenerChoosesTLSOnlyForTLSPreface(t *testing.T) {
	vh := securedVHost(t, "example.com", 0, "secure")
	reg := newRegistry()
	reg.add(vh)

	tlsConfig, err := BuildTLSConfig([]*VirtualHost{vh}, []string{"http/1.1"})
	if err != nil {
		t.Fatal(err)
	}

	lc, err := config.NewListenerConfig().Port(0).Interface("127.0.0.1").Protocol(config.Http1).Build()
	if err != nil {
		t.Fatal(err)
	}
	sl := NewStreamListener(lc, reg, zap.NewNop(), nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sl.Listen(ctx, tlsConfig); err != nil {
		t.Fatal(err)
	}
	defer sl.Close()

	addr := sl.Addr().String()

	// A cleartext preface (no 0x16 0x03 leader) is served as plain HTTP.
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	resp := rawHTTPGet(t, conn, "example.com")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cleartext GET status = %d, want 200", resp.StatusCode)
	}

	// A TLS preface (0x16 0x03 leader) is handshaked before being served.
	tlsConn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: "example.com", InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("tls.Dial() error = %v, want the listener to complete a handshake", err)
	}
	resp = rawHTTPGet(t, tlsConn, "example.com")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("TLS GET status = %d, want 200", resp.StatusCode)
	}
}

func TestStreamListenerSNISelectsCertificatePerVirtualHost(t *testing.T) {
	const port = uint16(0)
	vhA := securedVHost(t, "a.example.com", port, "from-a")
	vhB := securedVHost(t, "b.example.com", port, "from-b")

	reg := newRegistry()
	reg.add(vhA)
	reg.add(vhB)

	tlsConfig, err := BuildTLSConfig([]*VirtualHost{vhA, vhB}, []string{"http/1.1"})
	if err != nil {
		t.Fatal(err)
	}

	lc, err := config.NewListenerConfig().Port(0).Interface("127.0.0.1").Protocol(config.Http1).Build()
	if err != nil {
		t.Fatal(err)
	}
	sl := NewStreamListener(lc, reg, zap.NewNop(), nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sl.Listen(ctx, tlsConfig); err != nil {
		t.Fatal(err)
	}
	defer sl.Close()

	addr := sl.Addr().String()

	for _, c := range []struct {
		sni, host, want string
	}{
		{"a.example.com", "a.example.com", "from-a"},
		{"b.example.com", "b.example.com", "from-b"},
	} {
		tlsConn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: c.sni, InsecureSkipVerify: true})
		if err != nil {
			t.Fatalf("tls.Dial(%s) error = %v", c.sni, err)
		}
		state := tlsConn.ConnectionState()
		if len(state.PeerCertificates) == 0 || state.PeerCertificates[0].Subject.CommonName != c.sni {
			t.Fatalf("SNI %s: presented certificate CN = %v, want %s", c.sni, state.PeerCertificates, c.sni)
		}

		resp := rawHTTPGet(t, tlsConn, c.host)
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("SNI %s: reading body: %v", c.sni, err)
		}
		if got := string(body); got != c.want {
			t.Fatalf("SNI %s: body = %q, want %q", c.sni, got, c.want)
		}
	}
}
