package userlock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryLockerSerializesSameUser(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "user-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Acquire(ctx, "user-1")
		if err != nil {
			t.Errorf("second acquire: %v", err)
			return
		}
		close(acquired)
		second()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the lease is held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never proceeded after release")
	}
}

func TestMemoryLockerIndependentUsers(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, "user-a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := locker.Acquire(ctx, "user-b")
		if err != nil {
			t.Errorf("acquire b: %v", err)
			return
		}
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different users should not contend")
	}
}

func TestMemoryLockerAcquireHonorsContext(t *testing.T) {
	locker := NewMemoryLocker()

	release, err := locker.Acquire(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, "user-1"); err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestMemoryLockerReleaseIsIdempotent(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "user-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	release()

	again, err := locker.Acquire(ctx, "user-1")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	again()
}

func TestMemoryLockerUnderContention(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "user-1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("lease held by %d goroutines concurrently", maxSeen)
	}
}
