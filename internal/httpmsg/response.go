package httpmsg

import (
	"bytes"
	"io"
	"net/http"
)

// Response is Gruxi's outbound message wrapper: either fully buffered
// bytes or a streaming inbound body (proxied straight through), matching
// spec.md §4.N.
type Response struct {
	StatusCode int
	Header     http.Header

	// Exactly one of Buffered or Stream should be set.
	Buffered []byte
	Stream   io.ReadCloser

	// Upgraded is true once a 101 Switching Protocols upgrade has been
	// bridged; post-processing (compression, Connection: close, access
	// logging of body size) must be skipped for these (spec.md §9).
	Upgraded bool
}

// NewBuffered builds a fully buffered response.
func NewBuffered(status int, body []byte) *Response {
	return &Response{
		StatusCode: status,
		Header:     make(http.Header),
		Buffered:   body,
	}
}

// NewStreaming builds a response whose body streams from an upstream/file.
func NewStreaming(status int, stream io.ReadCloser) *Response {
	return &Response{
		StatusCode: status,
		Header:     make(http.Header),
		Stream:     stream,
	}
}

// ContentLength returns the buffered body length, or -1 if streaming (the
// length isn't known up front).
func (r *Response) ContentLength() int64 {
	if r.Buffered != nil {
		return int64(len(r.Buffered))
	}
	return -1
}

// WriteTo materialises the response onto w, the final step before the
// bytes leave the process ("into_hyper()" in spec.md's source vocabulary).
func (r *Response) WriteTo(w http.ResponseWriter) error {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.StatusCode)
	if r.Buffered != nil {
		_, err := w.Write(r.Buffered)
		return err
	}
	if r.Stream != nil {
		defer r.Stream.Close()
		_, err := io.Copy(w, r.Stream)
		return err
	}
	return nil
}

// Reader returns a reader over the response body regardless of whether it
// is buffered or streaming.
func (r *Response) Reader() io.ReadCloser {
	if r.Stream != nil {
		return r.Stream
	}
	return io.NopCloser(bytes.NewReader(r.Buffered))
}
