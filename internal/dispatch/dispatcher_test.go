package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T, opts Options) *Dispatcher {
	t.Helper()
	if opts.Backoff == 0 {
		opts.Backoff = time.Millisecond
	}
	if opts.JobTimeout == 0 {
		opts.JobTimeout = time.Second
	}
	d := New(opts)
	d.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		d.Shutdown(ctx)
	})
	return d
}

func drainAll(t *testing.T, d *Dispatcher, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	got := 0
	for got < want {
		got += d.Drain()
		if time.Now().After(deadline) {
			t.Fatalf("drained %d of %d rejoins", got, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestJobsForOnePlayerRunInOrder(t *testing.T) {
	d := newTestDispatcher(t, Options{QueueSize: 16})

	var mu sync.Mutex
	var order []int
	for i := 0; i < 8; i++ {
		i := i
		err := d.Submit(Job{
			SteamID: "s1",
			Kind:    "finish",
			Do: func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			},
			Rejoin: func(error) {},
		})
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	drainAll(t, d, 8)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("execution order %v", order)
		}
	}
}

func TestSubmitDropsWhenQueueFull(t *testing.T) {
	// Never started, so nothing consumes the queue.
	d := New(Options{QueueSize: 2})

	job := Job{Do: func(ctx context.Context) error { return nil }}
	if err := d.Submit(job); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := d.Submit(job); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if err := d.Submit(job); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third submit err = %v, want ErrQueueFull", err)
	}
}

func TestRejoinRunsOnDrainingGoroutine(t *testing.T) {
	d := newTestDispatcher(t, Options{QueueSize: 4})

	ran := 0
	err := d.Submit(Job{
		Do:     func(ctx context.Context) error { return nil },
		Rejoin: func(err error) { ran++ },
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drainAll(t, d, 1)
	if ran != 1 {
		t.Fatalf("rejoin ran %d times", ran)
	}
	// Nothing left to drain.
	if n := d.Drain(); n != 0 {
		t.Fatalf("second drain ran %d closures", n)
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	d := newTestDispatcher(t, Options{QueueSize: 4, Retries: 3})

	attempts := 0
	var final error
	err := d.Submit(Job{
		Kind: "finish",
		Do: func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		},
		Rejoin: func(err error) { final = err },
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drainAll(t, d, 1)
	if attempts != 3 || final != nil {
		t.Fatalf("attempts=%d final=%v", attempts, final)
	}
}

func TestExhaustedRetriesReportError(t *testing.T) {
	d := newTestDispatcher(t, Options{QueueSize: 4, Retries: 1})

	sentinel := errors.New("backend down")
	attempts := 0
	var final error
	err := d.Submit(Job{
		Do: func(ctx context.Context) error {
			attempts++
			return sentinel
		},
		Rejoin: func(err error) { final = err },
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drainAll(t, d, 1)
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if !errors.Is(final, sentinel) {
		t.Fatalf("final = %v, want %v", final, sentinel)
	}
}

func TestShutdownFinishesQueuedJobs(t *testing.T) {
	d := New(Options{QueueSize: 16, Backoff: time.Millisecond, JobTimeout: time.Second})
	d.Start(context.Background())

	var mu sync.Mutex
	done := 0
	for i := 0; i < 5; i++ {
		if err := d.Submit(Job{Do: func(ctx context.Context) error {
			mu.Lock()
			done++
			mu.Unlock()
			return nil
		}}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if done != 5 {
		t.Fatalf("completed %d of 5 jobs", done)
	}

	if err := d.Submit(Job{Do: func(ctx context.Context) error { return nil }}); err == nil {
		t.Fatalf("submit after shutdown should fail")
	}
}
