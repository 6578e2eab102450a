// Package vetis implements an embeddable HTTP reverse-proxy / origin
// server: listener acceptance and protocol demultiplexing (TLS vs
// cleartext; ALPN-selected HTTP/1.1, HTTP/2, HTTP/3 over QUIC),
// SNI-based certificate resolution across virtual hosts, and
// authority-and-prefix based request dispatch to a user handler, a
// static file tree, or a reverse-proxied upstream.
//
// A minimal embedding looks like:
//
//	lc, _ := config.NewListenerConfig().Port(8082).Build()
//	sc, _ := config.NewServerConfig().AddListener(lc).Build()
//
//	vhc, _ := config.NewVirtualHostConfig().Hostname("localhost").Port(8082).Build()
//	vh := vetis.NewVirtualHost(vhc)
//	vh.AddPath(vetis.NewHandlerPath("/hello", func(r *http.Request) (*vetis.Response, error) {
//		return vetis.TextResponse(http.StatusOK, "Hello from localhost"), nil
//	}))
//
//	srv := vetis.NewServer(sc)
//	srv.AddVirtualHost(vh)
//	log.Fatal(srv.Run())
package vetis
