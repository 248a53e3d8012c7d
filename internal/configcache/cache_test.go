package configcache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"gruxi/internal/model"
	"gruxi/internal/trigger"
)

type fakeLoader struct {
	calls int32
}

func (f *fakeLoader) LoadConfiguration(ctx context.Context) (*model.CachedConfiguration, error) {
	atomic.AddInt32(&f.calls, 1)
	return &model.CachedConfiguration{SchemaVersion: int(atomic.LoadInt32(&f.calls))}, nil
}

func TestGetReusesCachedSnapshotUntilInvalidated(t *testing.T) {
	loader := &fakeLoader{}
	c := New(loader, trigger.New())

	cfg1, err := c.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	cfg2, err := c.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg1 != cfg2 {
		t.Fatal("expected same cached snapshot across calls")
	}
	if atomic.LoadInt32(&loader.calls) != 1 {
		t.Fatalf("expected exactly one load, got %d", loader.calls)
	}

	c.Invalidate()
	cfg3, err := c.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg3 == cfg1 {
		t.Fatal("expected a fresh snapshot after invalidation")
	}
	if atomic.LoadInt32(&loader.calls) != 2 {
		t.Fatalf("expected two loads after invalidation, got %d", loader.calls)
	}
}

func TestWatchTriggerInvalidatesOnFire(t *testing.T) {
	loader := &fakeLoader{}
	bus := trigger.New()
	c := New(loader, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.WatchTrigger(ctx)

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	bus.Fire(trigger.RefreshCachedConfiguration)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.RLock()
		valid := c.valid
		c.mu.RUnlock()
		if !valid {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("cache was not invalidated after trigger fired")
}
