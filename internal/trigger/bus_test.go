package trigger

import (
	"testing"
	"time"
)

func TestFireCancelsOutstandingToken(t *testing.T) {
	b := New()
	tok := b.GetToken(ReloadConfiguration)

	done := make(chan struct{})
	go func() {
		<-tok.Done()
		close(done)
	}()

	b.Fire(ReloadConfiguration)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("token was not cancelled after Fire")
	}
	if !tok.Cancelled() {
		t.Fatal("expected old token to report cancelled")
	}
}

func TestGetTokenAfterFireIsLive(t *testing.T) {
	b := New()
	b.Fire(ReloadConfiguration)
	tok := b.GetToken(ReloadConfiguration)
	if tok.Cancelled() {
		t.Fatal("token obtained after fire should be live")
	}
}

func TestUnregisteredNameAutoRegisters(t *testing.T) {
	b := New()
	tok := b.GetToken("custom_trigger")
	if tok.Cancelled() {
		t.Fatal("freshly registered token should be live")
	}
}

func TestFireDoesNotAffectOtherNames(t *testing.T) {
	b := New()
	shutdownTok := b.GetToken(Shutdown)
	b.Fire(ReloadConfiguration)
	if shutdownTok.Cancelled() {
		t.Fatal("firing one trigger must not cancel another")
	}
}
