// Package reqentry implements the single-request orchestration of
// spec.md §4.Q: in-flight counting, site selection, request validation,
// admin-route dispatch, the request-handler manager, response
// compression, standard/site headers, graceful-shutdown signalling, and
// access logging.
//
// Grounded on the teacher's echo middleware chain (internal/middleware,
// cmd-level route registration) generalized from a framework-bound
// middleware stack into a single plain http.Handler, since Gruxi's core
// request path is driven by `internal/server`'s manually dispatched
// HTTP/1.1 and HTTP/2 connections rather than an echo instance.
package reqentry

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"gruxi/internal/accesslog"
	"gruxi/internal/gruxlog"
	"gruxi/internal/httpmsg"
	"gruxi/internal/model"
	"gruxi/internal/monitoring"
	"gruxi/internal/runstate"
	"gruxi/internal/sitematch"
	"gruxi/internal/trigger"
)

var log = gruxlog.New("RequestEntry")

// allowedMethods is the method whitelist of spec.md §4.Q step 3.
var allowedMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true,
	http.MethodPut: true, http.MethodDelete: true, http.MethodOptions: true,
	http.MethodTrace: true, http.MethodConnect: true, http.MethodPatch: true,
}

// Entry is the per-binding request handler wired into internal/server's
// per-connection http.Server.
type Entry struct {
	Binding *model.Binding
	Current func() *runstate.State
	Monitor *monitoring.Monitor
	Bus     *trigger.Bus

	// Admin, when non-nil, handles every request on an admin binding
	// (spec.md §4.Q step 4); nil on non-admin bindings.
	Admin http.Handler
}

// ServeHTTP implements the full §4.Q pipeline.
func (e *Entry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	done := e.Monitor.BeginRequest()
	defer done()

	state := e.Current()
	if state == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	req := httpmsg.NewRequest(r)

	sites := state.SitesForBinding(e.Binding.ID)
	site := sitematch.FindBestMatch(sites, req.Hostname())
	if site == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if r.ProtoMajor == 1 {
		hostHeaders := r.Header[http.CanonicalHeaderKey("Host")]
		if len(hostHeaders) > 1 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
	}

	if !allowedMethods[r.Method] {
		http.Error(w, "not implemented", http.StatusNotImplemented)
		return
	}

	if maxBody := state.Config.Core.ServerSettings.MaxBodySize; maxBody > 0 &&
		(r.Method == http.MethodPost || r.Method == http.MethodPut) {
		if r.ContentLength > maxBody {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	}

	if e.Binding.IsAdmin {
		if e.Admin != nil {
			e.Admin.ServeHTTP(w, r)
		} else {
			http.Error(w, "not found", http.StatusNotFound)
		}
		return
	}

	if r.Method == http.MethodOptions && r.URL.Path == "*" {
		w.Header().Set("Allow", allowHeaderValue())
		w.WriteHeader(http.StatusOK)
		return
	}

	var hijacked net.Conn
	if httpmsg.IsUpgradeRequest(r) {
		if conn, err := hijackForUpgrade(w); err == nil {
			hijacked = conn
			req.SetUpgrade(conn)
		}
	}

	resp, status := state.Handlers.HandleRequest(req, site)

	if hijacked != nil {
		if resp == nil || !resp.Upgraded {
			// The hijacked connection was never bridged (the handler
			// wasn't a proxy, or the upstream handshake failed before
			// reaching a 101 response); there is no ResponseWriter left
			// to report status through, so just close it.
			hijacked.Close()
		}
		return
	}

	if resp == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}

	if resp.Upgraded {
		// Upgrade bridging has already taken over the connection; no
		// further post-processing applies (spec.md §9).
		return
	}

	if r.Method == http.MethodOptions && resp.Header.Get("Allow") == "" {
		resp.Header.Set("Allow", allowHeaderValue())
	}

	maybeCompress(resp, state)

	resp.Header.Set("Server", "Gruxi")
	resp.Header.Add("Vary", "Accept-Encoding")
	for k, v := range site.ExtraHeaders {
		resp.Header.Set(k, v)
	}

	if e.shuttingDown() {
		resp.Header.Set("Connection", "close")
	}

	if err := resp.WriteTo(w); err != nil {
		log.Debugf("writing response: %v", err)
	}

	if site.AccessLogEnabled {
		e.writeAccessLog(state.AccessLog, site.ID, r, resp)
	}
}

// hijackForUpgrade takes over w's underlying connection for spec.md
// §4.I's upgrade bridging. Any bytes the client already sent past the
// request headers and buffered by net/http are preserved and replayed
// before further reads from the raw connection.
func hijackForUpgrade(w http.ResponseWriter) (net.Conn, error) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, errNoHijack
	}
	conn, bufrw, err := hj.Hijack()
	if err != nil {
		return nil, err
	}
	if bufrw != nil && bufrw.Reader.Buffered() > 0 {
		if buffered, err := bufrw.Reader.Peek(bufrw.Reader.Buffered()); err == nil {
			prefix := make([]byte, len(buffered))
			copy(prefix, buffered)
			return &bufferedConn{Conn: conn, prefix: prefix}, nil
		}
	}
	return conn, nil
}

var errNoHijack = errors.New("reqentry: response writer does not support hijacking")

// bufferedConn replays a prefix of already-read bytes before falling
// through to the underlying net.Conn's own Read.
type bufferedConn struct {
	net.Conn
	prefix []byte
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	if len(c.prefix) > 0 {
		n := copy(p, c.prefix)
		c.prefix = c.prefix[n:]
		return n, nil
	}
	return c.Conn.Read(p)
}

func (e *Entry) shuttingDown() bool {
	return e.Bus.GetToken(trigger.Shutdown).Cancelled() || e.Bus.GetToken(trigger.StopServices).Cancelled()
}

func allowHeaderValue() string {
	return strings.Join([]string{
		http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodDelete, http.MethodOptions, http.MethodTrace,
		http.MethodConnect, http.MethodPatch,
	}, ", ")
}

// maybeCompress gzips resp's body in place when it isn't already
// encoded, its MIME type is compressible per the cache's gzip policy,
// and it is buffered (spec.md §4.Q step 7).
func maybeCompress(resp *httpmsg.Response, state *runstate.State) {
	if resp.Header.Get("Content-Encoding") != "" {
		return
	}
	if resp.Buffered == nil {
		return
	}
	mimeType := resp.Header.Get("Content-Type")
	if !state.FileCache.ShouldCompress(mimeType, int64(len(resp.Buffered))) {
		return
	}

	var buf bytes.Buffer
	if err := state.FileCache.CompressContent(resp.Buffered, &buf); err != nil {
		return
	}
	resp.Buffered = buf.Bytes()
	resp.Header.Set("Content-Encoding", "gzip")
	resp.Header.Del("Content-Length")
}

func (e *Entry) writeAccessLog(buf *accesslog.Buffer, siteID string, r *http.Request, resp *httpmsg.Response) {
	bytesSent := resp.ContentLength()
	if bytesSent < 0 {
		bytesSent = 0
	}
	buf.Write(siteID, accesslog.Entry{
		RemoteAddr: remoteHost(r),
		Timestamp:  time.Now(),
		Method:     r.Method,
		URI:        r.URL.RequestURI(),
		Protocol:   r.Proto,
		Status:     resp.StatusCode,
		BytesSent:  bytesSent,
	})
}

func remoteHost(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i != -1 {
		return host[:i]
	}
	return host
}
