package statestore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryStore_PutTake(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "handoff:abc", "verified", time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	v, ok, err := s.Take(ctx, "handoff:abc")
	if err != nil || !ok || v != "verified" {
		t.Fatalf("Take = %q, %v, %v; want verified, true, nil", v, ok, err)
	}

	// 2回目は取得できない
	if _, ok, _ := s.Take(ctx, "handoff:abc"); ok {
		t.Error("second Take should fail")
	}
}

func TestMemoryStore_TakeUnknownKey(t *testing.T) {
	s := newTestStore(t)
	if _, ok, err := s.Take(context.Background(), "missing"); ok || err != nil {
		t.Errorf("Take(missing) = %v, %v", ok, err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, "k", "v", 20*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	if _, ok, _ := s.Take(ctx, "k"); ok {
		t.Error("expired entry must not be returned")
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, "short", "1", 20*time.Millisecond)
	s.Put(ctx, "long", "2", time.Hour)
	time.Sleep(60 * time.Millisecond)

	s.Sweep()
	if n := s.Len(); n != 1 {
		t.Errorf("Len after Sweep = %d, want 1", n)
	}
	if v, ok, _ := s.Take(ctx, "long"); !ok || v != "2" {
		t.Error("unexpired entry should survive sweep")
	}
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, "k", "old", time.Minute)
	s.Put(ctx, "k", "new", time.Minute)

	if v, _, _ := s.Take(ctx, "k"); v != "new" {
		t.Errorf("Take = %q, want new", v)
	}
}

// 同じキーを同時にTakeしても成功するのは1回だけであることを検証
func TestMemoryStore_ConcurrentTake(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Put(ctx, "handoff:race", "verified", time.Minute)

	const workers = 64
	var wg sync.WaitGroup
	var successes atomic.Int32
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok, _ := s.Take(ctx, "handoff:race"); ok {
				successes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Errorf("successful takes = %d, want 1", got)
	}
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	s := NewMemoryStore()

	done := make(chan struct{})
	go func() {
		s.Close()
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}
