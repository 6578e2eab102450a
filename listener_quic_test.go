package vetis

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"testing"

	"github.com/quic-go/quic-go/http3"
	"go.uber.org/zap"

	"github.com/vetis/vetis/config"
)

func TestDatagramListenerServesHTTP3(t *testing.T) {
	vh := securedVHost(t, "example.com", 0, "h3-ok")
	reg := newRegistry()
	reg.add(vh)

	tlsConfig, err := BuildTLSConfig([]*VirtualHost{vh}, []string{"h3"})
	if err != nil {
		t.Fatal(err)
	}

	lc, err := config.NewListenerConfig().Port(0).Interface("127.0.0.1").Protocol(config.Http3).SSL(true).Build()
	if err != nil {
		t.Fatal(err)
	}
	dl := NewDatagramListener(lc, reg, zap.NewNop(), nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := dl.Listen(ctx, tlsConfig); err != nil {
		t.Fatal(err)
	}
	defer dl.Close()

	rt := &http3.Transport{
		TLSClientConfig: &tls.Config{ServerName: "example.com", InsecureSkipVerify: true},
	}
	defer rt.Close()
	client := &http.Client{Transport: rt}

	resp, err := client.Get("https://" + dl.Addr().String() + "/")
	if err != nil {
		t.Fatalf("http/3 GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "h3-ok" {
		t.Fatalf("body = %q, want %q", body, "h3-ok")
	}
}

func TestDatagramListenerRequiresTLSConfig(t *testing.T) {
	reg := newRegistry()
	lc, err := config.NewListenerConfig().Port(0).Interface("127.0.0.1").Protocol(config.Http3).SSL(true).Build()
	if err != nil {
		t.Fatal(err)
	}
	dl := NewDatagramListener(lc, reg, zap.NewNop(), nil, 0)

	if err := dl.Listen(context.Background(), nil); err == nil {
		t.Fatal("expected Listen(nil tlsConfig) to fail for an http/3 listener")
	}
}
