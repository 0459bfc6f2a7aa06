package workers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// crashingWorker panics a fixed number of times, then blocks until the
// context is canceled and terminates properly.
type crashingWorker struct {
	mu      sync.Mutex
	runs    int
	crashes int
}

func (w *crashingWorker) Run(ctx context.Context) error {
	w.mu.Lock()
	w.runs++
	mustCrash := w.runs <= w.crashes
	w.mu.Unlock()

	if mustCrash {
		panic("boom")
	}
	<-ctx.Done()
	return nil
}

func (w *crashingWorker) runCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSupervisor_Restarts_Panicking_Worker(t *testing.T) {
	req := require.New(t)
	worker := &crashingWorker{crashes: 2}
	supervisor := NewSupervisor(testLogger(), 10*time.Millisecond)
	supervisor.Add(worker)

	done := make(chan struct{})
	go func() {
		supervisor.Run(context.Background())
		close(done)
	}()

	// Two panics and one healthy run.
	req.Eventually(func() bool {
		return worker.runCount() == 3
	}, 2*time.Second, 10*time.Millisecond)

	supervisor.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
}

func TestSupervisor_Does_Not_Restart_Clean_Worker(t *testing.T) {
	req := require.New(t)
	worker := &crashingWorker{}
	supervisor := NewSupervisor(testLogger(), 10*time.Millisecond)
	supervisor.Add(worker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(done)
	}()

	req.Eventually(func() bool {
		return worker.runCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
	req.Equal(1, worker.runCount())
}

func TestSupervisor_Parent_Cancellation_Stops_All_Workers(t *testing.T) {
	req := require.New(t)
	first := &crashingWorker{}
	second := &crashingWorker{}
	supervisor := NewSupervisor(testLogger(), 10*time.Millisecond)
	supervisor.Add(first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(done)
	}()

	req.Eventually(func() bool {
		return first.runCount() == 1 && second.runCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
}
