package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocal_Exclusive(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "feed-1")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("Expected at most 1 holder at a time, got %d", maxInside)
	}
}

func TestLocal_IndependentKeys(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("Lock(a) failed: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Expected lock on a different key to succeed, got %v", err)
	}
	unlockB()
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal()
	unlock, _ := l.Lock(context.Background(), "k")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); err == nil {
		t.Fatal("Expected error while lock is held, got nil")
	}

	unlock()
	unlock()

	again, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Expected lock to be free after unlock, got %v", err)
	}
	again()
}

func TestLocalImplementsLocker(t *testing.T) {
	var _ Locker = NewLocal()
	var _ Locker = (*Redis)(nil)
}

func TestNewRedis_Unreachable(t *testing.T) {
	_, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1"}, nil)
	if err == nil {
		t.Fatal("Expected connection error, got nil")
	}
}

func TestKeepAlive_RenewsUntilStopped(t *testing.T) {
	var renewals int32
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, time.Millisecond, func() (bool, error) {
			atomic.AddInt32(&renewals, 1)
			return true, nil
		}, func(string, ...any) {})
	}()

	time.Sleep(20 * time.Millisecond)
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected keepAlive to return after stop")
	}
	if atomic.LoadInt32(&renewals) == 0 {
		t.Error("Expected the lock to be renewed while held")
	}
}

func TestKeepAlive_StopsWhenLockLost(t *testing.T) {
	var calls int32
	var logged []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(make(chan struct{}), time.Millisecond, func() (bool, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return false, errors.New("connection reset")
			}
			return false, nil
		}, func(format string, args ...any) { logged = append(logged, format) })
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected keepAlive to return once the lock is lost")
	}
	if calls != 2 {
		t.Errorf("Expected a retry after the failed renewal, got %d calls", calls)
	}
	if len(logged) != 2 {
		t.Errorf("Expected 2 log lines, got %v", logged)
	}
}
