// Package server implements the per-binding accept loop of spec.md
// §4.P: bind with retry, then accept connections until the shutdown or
// stop_services trigger fires, dispatching each connection to HTTP/2 or
// HTTP/1.1 by ALPN (TLS bindings) or plain HTTP/1.1 (cleartext).
//
// Grounded on the teacher's service-layer goroutine-per-unit-of-work
// idiom (internal/service/nginx_reload.go spawns a detached goroutine
// per reload and logs failures without propagating them to the caller)
// generalized to a per-connection spawn that never kills the accept
// loop on a single connection's error.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"gruxi/internal/gruxlog"
	"gruxi/internal/model"
	"gruxi/internal/trigger"
)

var log = gruxlog.New("Server")

const (
	bindRetryAttempts = 5
	bindRetryDelay    = 500 * time.Millisecond
)

// Loop owns the accept loop for one binding.
type Loop struct {
	Binding   *model.Binding
	TLSConfig *tls.Config // nil for cleartext bindings
	Handler   http.Handler
	Bus       *trigger.Bus

	h2 *http2.Server
}

// Run binds the loop's address and serves until shutdown or
// stop_services fires, or a fatal accept error occurs. It always
// returns once the loop has stopped accepting new connections.
func (l *Loop) Run() error {
	if l.Binding.IsAdmin && !l.Binding.IsTLS {
		log.Warnf("admin binding %s is not TLS", l.Binding.Address())
	}

	ln, err := bindWithRetry(l.Binding.Address())
	if err != nil {
		return fmt.Errorf("server: bind %s: %w", l.Binding.Address(), err)
	}
	defer ln.Close()

	l.h2 = &http2.Server{}

	shutdownTok := l.Bus.GetToken(trigger.Shutdown)
	stopTok := l.Bus.GetToken(trigger.StopServices)

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan acceptResult)
	go func() {
		for {
			conn, err := ln.Accept()
			acceptCh <- acceptResult{conn, err}
			if err != nil {
				return
			}
		}
	}()

	log.Infof("listening on %s (tls=%v admin=%v)", l.Binding.Address(), l.Binding.IsTLS, l.Binding.IsAdmin)

	for {
		select {
		case <-shutdownTok.Done():
			log.Infof("%s: shutdown, exiting accept loop", l.Binding.Address())
			return nil
		case <-stopTok.Done():
			log.Infof("%s: stop_services, exiting accept loop", l.Binding.Address())
			return nil
		case res := <-acceptCh:
			if res.err != nil {
				log.Errorf("%s: accept: %v", l.Binding.Address(), res.err)
				return res.err
			}
			go l.handleConn(res.conn)
		}
	}
}

func (l *Loop) handleConn(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s: panic serving connection: %v", l.Binding.Address(), r)
		}
	}()

	if l.TLSConfig == nil {
		l.serveHTTP1(conn)
		return
	}

	tlsConn := tls.Server(conn, l.TLSConfig)
	if err := tlsConn.Handshake(); err != nil {
		log.Errorf("%s: tls handshake: %v", l.Binding.Address(), err)
		tlsConn.Close()
		return
	}

	if tlsConn.ConnectionState().NegotiatedProtocol == "h2" {
		l.h2.ServeConn(tlsConn, &http2.ServeConnOpts{Handler: l.Handler})
		return
	}
	l.serveHTTP1(tlsConn)
}

func (l *Loop) serveHTTP1(conn net.Conn) {
	srv := &http.Server{Handler: l.Handler}
	ln := newSingleConnListener(conn)
	if err := srv.Serve(ln); err != nil {
		log.Debugf("%s: connection closed: %v", l.Binding.Address(), err)
	}
}

// bindWithRetry attempts to listen on addr up to bindRetryAttempts times,
// waiting bindRetryDelay between attempts (spec.md §4.P).
func bindWithRetry(addr string) (net.Listener, error) {
	var lastErr error
	for attempt := 1; attempt <= bindRetryAttempts; attempt++ {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		log.Warnf("bind attempt %d/%d on %s failed: %v", attempt, bindRetryAttempts, addr, err)
		if attempt < bindRetryAttempts {
			time.Sleep(bindRetryDelay)
		}
	}
	return nil, fmt.Errorf("exhausted %d bind attempts: %w", bindRetryAttempts, lastErr)
}

// RunAll runs one Loop per binding concurrently, returning once every
// loop has exited (on shutdown/stop_services or a fatal accept error).
func RunAll(ctx context.Context, loops []*Loop) {
	done := make(chan struct{}, len(loops))
	for _, loop := range loops {
		loop := loop
		go func() {
			if err := loop.Run(); err != nil {
				log.Errorf("loop for %s exited: %v", loop.Binding.Address(), err)
			}
			done <- struct{}{}
		}()
	}
	for range loops {
		<-done
	}
}
