package vetis

import (
	"net/http"

	"github.com/vetis/vetis/verrors"
)

// Path is one entry in a virtual host's route set: a URI prefix plus the
// logic that turns a matching request into a Response. staticfiles.Path
// and reverseproxy.Path satisfy this structurally, without importing this
// package's VirtualHost — only Response and this interface.
type Path interface {
	// URI returns the path's registered URI prefix, as given to AddPath.
	URI() string
	// Handle serves a request whose URL matched this path's prefix. tail
	// is the portion of the request URI after the matched prefix.
	Handle(r *http.Request, tail string) (*Response, error)
}

// HandlerFunc adapts a plain function to the Handler path kind, the same
// way a boxed closure is wired into a virtual host's route set.
type HandlerFunc func(r *http.Request) (*Response, error)

// HandlerPath is a Path backed by an in-process HandlerFunc.
type HandlerPath struct {
	uri     string
	handler HandlerFunc
}

// NewHandlerPath constructs a HandlerPath serving uri with handler.
func NewHandlerPath(uri string, handler HandlerFunc) *HandlerPath {
	return &HandlerPath{uri: uri, handler: handler}
}

// URI returns the path's URI prefix.
func (p *HandlerPath) URI() string { return p.uri }

// Handle invokes the wrapped handler. An error that already is a
// VirtualHostError is returned unchanged, keeping its kind; any other
// error is reported as a Handler kind VirtualHostError.
func (p *HandlerPath) Handle(r *http.Request, _ string) (*Response, error) {
	resp, err := p.handler(r)
	if err != nil {
		if vhErr, ok := verrors.AsVirtualHostError(err); ok {
			return nil, vhErr
		}
		return nil, verrors.NewHandlerError(err.Error())
	}
	return resp, nil
}
