package resolve

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunKeepsInputOrder(t *testing.T) {
	tasks := make([]Task[int], 5)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) int {
			// Later tasks finish first.
			time.Sleep(time.Duration(5-i) * 2 * time.Millisecond)
			return i * 10
		}
	}

	got := Run(context.Background(), 5, tasks)
	assert.Equal(t, []int{0, 10, 20, 30, 40}, got)
}

func TestRunBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	tasks := make([]Task[bool], 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) bool {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			return true
		}
	}

	got := Run(context.Background(), 3, tasks)
	assert.Len(t, got, 20)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestRunStartsInFIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var started []int
	tasks := make([]Task[struct{}], 6)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) struct{} {
			mu.Lock()
			started = append(started, i)
			mu.Unlock()
			return struct{}{}
		}
	}

	Run(context.Background(), 1, tasks)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, started)
}

func TestRunZeroLimitRunsSerially(t *testing.T) {
	tasks := []Task[string]{
		func(context.Context) string { return "a" },
		func(context.Context) string { return "b" },
	}
	assert.Equal(t, []string{"a", "b"}, Run(context.Background(), 0, tasks))
}

func TestRunStopsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ran atomic.Int32

	tasks := make([]Task[int], 4)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) int {
			ran.Add(1)
			if i == 0 {
				cancel()
			}
			return i + 1
		}
	}

	got := Run(ctx, 1, tasks)
	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, []int{1, 0, 0, 0}, got)
}

func TestRunAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := Run(ctx, 2, []Task[int]{
		func(context.Context) int { return 1 },
	})
	assert.Equal(t, []int{0}, got)
}
