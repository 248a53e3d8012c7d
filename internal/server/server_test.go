package server

import (
	"io"
	"net"
	"testing"
)

func TestBindWithRetrySucceedsOnFreeAddr(t *testing.T) {
	ln, err := bindWithRetry("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	if ln.Addr() == nil {
		t.Fatal("expected a bound address")
	}
}

func TestBindWithRetryFailsOnAlreadyBoundAddr(t *testing.T) {
	holder, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()

	_, err = bindWithRetry(holder.Addr().String())
	if err == nil {
		t.Fatal("expected bind to fail against an already-bound address")
	}
}

func TestSingleConnListenerYieldsConnOnceThenBlocksUntilClosed(t *testing.T) {
	client, serverSide := net.Pipe()
	defer client.Close()

	ln := newSingleConnListener(serverSide)

	c, err := ln.Accept()
	if err != nil || c != serverSide {
		t.Fatalf("expected first Accept to return the wrapped conn, got %v, %v", c, err)
	}

	accepted := make(chan error, 1)
	go func() {
		_, err := ln.Accept()
		accepted <- err
	}()

	ln.Close()

	if err := <-accepted; err != io.EOF {
		t.Fatalf("expected io.EOF after close, got %v", err)
	}
}
