package ttlcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSlotServesFreshValue(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	s := New[string](30*time.Second, func() time.Time { return now })

	var calls int
	fetch := func(context.Context) (string, error) {
		calls++
		return "u1", nil
	}

	for i := 0; i < 3; i++ {
		v, err := s.Get(context.Background(), fetch)
		if err != nil || v != "u1" {
			t.Fatalf("unexpected result %q err=%v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}

	now = now.Add(30 * time.Second)
	if _, err := s.Get(context.Background(), fetch); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected refetch at ttl boundary, got %d fetches", calls)
	}
}

func TestSlotFetchErrorLeavesSlot(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	s := New[string](time.Second, func() time.Time { return now })
	s.Set("stale")
	now = now.Add(2 * time.Second)

	boom := errors.New("boom")
	if _, err := s.Get(context.Background(), func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value != "stale" || !s.filled {
		t.Fatalf("fetch error must not touch the slot, got %q filled=%v", s.value, s.filled)
	}
}

func TestSlotGetIfRejectsForeignValue(t *testing.T) {
	s := New[string](time.Minute, nil)
	s.Set("owner-a")

	v, err := s.GetIf(context.Background(), func(v string) bool { return v == "owner-b" }, func(context.Context) (string, error) {
		return "owner-b", nil
	})
	if err != nil || v != "owner-b" {
		t.Fatalf("expected refetch for foreign value, got %q err=%v", v, err)
	}
}

func TestSlotCoalescesConcurrentMisses(t *testing.T) {
	s := New[int](time.Minute, nil)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, _ := s.Get(context.Background(), fetch); v != 7 {
				t.Errorf("expected 7, got %d", v)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one coalesced fetch, got %d", got)
	}
}

func TestSlotClear(t *testing.T) {
	s := New[string](time.Minute, nil)
	s.Set("x")
	s.Clear()
	if _, ok := s.Peek(); ok {
		t.Fatal("expected cleared slot to be stale")
	}
}

func TestSlotClearDuringFetchDropsResult(t *testing.T) {
	s := New[string](time.Minute, nil)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan string)
	go func() {
		v, _ := s.Get(context.Background(), func(context.Context) (string, error) {
			close(started)
			<-release
			return "before", nil
		})
		done <- v
	}()
	<-started
	s.Clear()
	close(release)

	if v := <-done; v != "before" {
		t.Fatalf("in-flight caller should still see its own result, got %q", v)
	}
	if v, ok := s.Peek(); ok || v != "" {
		t.Fatalf("cleared slot was refilled by a stale fetch: %q fresh=%v", v, ok)
	}
}
