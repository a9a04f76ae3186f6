package fleet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/snooz-gateway/internal/snooz"
)

func TestGate_MutualExclusion(t *testing.T) {
	gate := NewGate()

	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gate.Do(context.Background(), "dev", "op", func(context.Context) (snooz.CommandResult, error) {
				now := atomic.AddInt32(&active, 1)
				for {
					max := atomic.LoadInt32(&maxActive)
					if now <= max || atomic.CompareAndSwapInt32(&maxActive, max, now) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return snooz.CommandResult{Status: snooz.StatusSuccessful}, nil
			})
			if err != nil {
				t.Errorf("Do() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxActive); got != 1 {
		t.Errorf("max concurrent operations = %d, want 1", got)
	}
}

func TestGate_ReleasedOnFailure(t *testing.T) {
	gate := NewGate()

	boom := func(context.Context) (snooz.CommandResult, error) {
		return snooz.CommandResult{}, context.DeadlineExceeded
	}
	if _, err := gate.Do(context.Background(), "dev", "op", boom); err == nil {
		t.Fatal("Do() error = nil, want failure propagated")
	}

	// The gate must be free again after a failing operation.
	done := make(chan struct{})
	go func() {
		defer close(done)
		gate.Do(context.Background(), "dev", "op", func(context.Context) (snooz.CommandResult, error) { //nolint:errcheck
			return snooz.CommandResult{Status: snooz.StatusSuccessful}, nil
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("gate not released after failing operation")
	}
}

func TestGate_AcquireRespectsContext(t *testing.T) {
	gate := NewGate()

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		gate.Do(context.Background(), "dev", "op", func(context.Context) (snooz.CommandResult, error) { //nolint:errcheck
			close(holding)
			<-release
			return snooz.CommandResult{Status: snooz.StatusSuccessful}, nil
		})
	}()
	<-holding
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := gate.Do(ctx, "dev", "op", func(context.Context) (snooz.CommandResult, error) {
		t.Error("operation ran despite cancelled acquire")
		return snooz.CommandResult{}, nil
	}); err == nil {
		t.Error("Do() error = nil, want context error while gate held")
	}
}
