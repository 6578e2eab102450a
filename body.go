package vetis

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"strconv"
)

// ResponseBody erases a buffer-backed, file-backed, or proxied-upstream
// body behind a single streaming interface. ContentLength reports the
// length and whether it is known ahead of time; a proxied upstream using
// chunked transfer encoding may not know it.
type ResponseBody interface {
	io.ReadCloser
	ContentLength() (int64, bool)
}

type readCloserBody struct {
	io.ReadCloser
	length int64
	known  bool
}

func (b *readCloserBody) ContentLength() (int64, bool) { return b.length, b.known }

// NewBufferBody adapts an in-memory byte slice.
func NewBufferBody(data []byte) ResponseBody {
	return &readCloserBody{ReadCloser: io.NopCloser(bytes.NewReader(data)), length: int64(len(data)), known: true}
}

// NewFileBody adapts an open file, streaming from its current offset to
// EOF. The file is closed when the body is closed.
func NewFileBody(f *os.File, length int64) ResponseBody {
	return &readCloserBody{ReadCloser: f, length: length, known: true}
}

// NewStreamBody adapts an arbitrary ReadCloser, such as an upstream's
// response body forwarded by the reverse proxy path, whose length may or
// may not be known ahead of time.
func NewStreamBody(rc io.ReadCloser, length int64, known bool) ResponseBody {
	return &readCloserBody{ReadCloser: rc, length: length, known: known}
}

// EmptyBody is a zero-length body for responses with no payload.
func EmptyBody() ResponseBody {
	return &readCloserBody{ReadCloser: io.NopCloser(bytes.NewReader(nil)), length: 0, known: true}
}

// Response is the fully-resolved result of routing a request: a status
// code, headers, and a body adaptor. Nothing is written to the wire until
// WriteTo is called, so a dispatcher can still splice headers in after a
// path handler builds the Response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       ResponseBody
}

// NewResponse returns a Response with the given status, an empty header
// set, and an empty body.
func NewResponse(status int) *Response {
	return &Response{StatusCode: status, Header: http.Header{}, Body: EmptyBody()}
}

// TextResponse returns a plain-text Response, the shape used for every
// built-in error and fallback page vetis renders on its own.
func TextResponse(status int, text string) *Response {
	r := NewResponse(status)
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	r.Body = NewBufferBody([]byte(text))
	return r
}

// WriteTo sends the response to w: headers, status line, then the body,
// closing the body afterward regardless of streaming outcome.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	defer r.Body.Close()

	hdr := w.Header()
	for k, vv := range r.Header {
		for _, v := range vv {
			hdr.Add(k, v)
		}
	}
	if length, ok := r.Body.ContentLength(); ok && hdr.Get("Content-Length") == "" {
		hdr.Set("Content-Length", strconv.FormatInt(length, 10))
	}

	w.WriteHeader(r.StatusCode)
	_, err := io.Copy(w, r.Body)
	return err
}
