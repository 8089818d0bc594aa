package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/hypeedev/gest/internal/adapters/mq/queue"
	worker "github.com/hypeedev/gest/internal/adapters/mq/worker"
	model "github.com/hypeedev/gest/internal/domain/model"
	logging "github.com/hypeedev/gest/pkg/logger"
	"github.com/hypeedev/gest/pkg/metrics"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) add(j queue.Job) { //nolint:gocritic // hugeParam: Job must be passed by value for channel semantics
	mq.jobs <- j
}

type mockRunner struct {
	mu       sync.Mutex
	commands []string
	fail     map[string]error
	delay    time.Duration
}

func newMockRunner() *mockRunner {
	return &mockRunner{fail: make(map[string]error)}
}

func (mr *mockRunner) Run(ctx context.Context, command string) error {
	if mr.delay > 0 {
		time.Sleep(mr.delay)
	}
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if err, ok := mr.fail[command]; ok {
		return err
	}
	mr.commands = append(mr.commands, command)
	return nil
}

func (mr *mockRunner) ran() []string {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return append([]string(nil), mr.commands...)
}

func dispatch(i int) model.Dispatch {
	return model.Dispatch{
		ID:      fmt.Sprintf("job-%d", i),
		Gesture: fmt.Sprintf("gesture %d", i),
		Command: fmt.Sprintf("echo %d", i),
		TS:      time.Now(),
	}
}

func spawnFailures() float64 {
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		return -1
	}
	for _, f := range families {
		if f.GetName() != "gest_engine_command_failures_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "reason" && l.GetValue() == "spawn" {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		runner := newMockRunner()

		convey.Convey("When creating a worker with default options", func() {
			w := worker.NewInMemoryWorker(q, runner)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, runner, worker.WithName("test-worker"), worker.WithLogger(logging.Get()))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			convey.Convey("And when jobs arrive", func() {
				q.add(dispatch(1))
				q.add(dispatch(2))

				convey.Convey("Then their commands run in order", func() {
					convey.So(waitFor(func() bool { return len(runner.ran()) == 2 }), convey.ShouldBeTrue)
					convey.So(runner.ran(), convey.ShouldResemble, []string{"echo 1", "echo 2"})
				})
			})

			convey.Convey("And when a command fails to start", func() {
				before := spawnFailures()
				runner.mu.Lock()
				runner.fail["echo 1"] = errors.New("no such shell")
				runner.mu.Unlock()
				q.add(dispatch(1))
				q.add(dispatch(2))

				convey.Convey("Then the worker keeps going", func() {
					convey.So(waitFor(func() bool { return len(runner.ran()) == 1 }), convey.ShouldBeTrue)
					convey.So(runner.ran(), convey.ShouldResemble, []string{"echo 2"})
				})

				convey.Convey("Then the failure is counted once", func() {
					convey.So(waitFor(func() bool { return len(runner.ran()) == 1 }), convey.ShouldBeTrue)
					convey.So(spawnFailures(), convey.ShouldEqual, before+1)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When context is cancelled", func() {
			w := worker.NewInMemoryWorker(q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			stopped := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(stopped)
			}()
			cancel()

			convey.Convey("Then worker should stop", func() {
				select {
				case <-stopped:
					convey.So(true, convey.ShouldBeTrue)
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When queue channel is closed", func() {
			w := worker.NewInMemoryWorker(q, runner)
			stopped := make(chan struct{})
			go func() {
				w.Run(context.Background())
				close(stopped)
			}()
			_ = q.Close()

			convey.Convey("Then worker should stop", func() {
				select {
				case <-stopped:
					convey.So(true, convey.ShouldBeTrue)
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a new Pool", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		runner := newMockRunner()

		convey.Convey("When creating a pool with default count", func() {
			pool := worker.NewPool(0, q, runner)

			convey.Convey("Then it uses the default size", func() {
				convey.So(pool.Size(), convey.ShouldEqual, 2)
				convey.So(pool.Busy(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When starting a pool", func() {
			pool := worker.NewPool(3, q, runner, worker.WithLogger(logging.Get()))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			convey.Convey("And when processing multiple jobs", func() {
				for i := 0; i < 5; i++ {
					q.add(dispatch(i))
				}

				convey.Convey("Then all jobs should be processed", func() {
					convey.So(waitFor(func() bool { return len(runner.ran()) == 5 }), convey.ShouldBeTrue)
				})
			})

			convey.Convey("And when shutting down", func() {
				q.add(dispatch(7))
				err := pool.Shutdown(context.Background())

				convey.Convey("Then queued jobs drain and workers exit", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(runner.ran(), convey.ShouldContain, "echo 7")
				})
			})
		})

	})
}

func TestPoolDecouplesSlowCommands(t *testing.T) {
	convey.Convey("Given a pool whose commands are slow", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		runner := newMockRunner()
		runner.delay = 50 * time.Millisecond
		pool := worker.NewPool(2, q, runner)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When jobs are enqueued faster than they run", func() {
			start := time.Now()
			for i := 0; i < 4; i++ {
				_ = q.Enqueue(ctx, dispatch(i))
			}
			elapsed := time.Since(start)

			convey.Convey("Then enqueueing never waits for a command", func() {
				convey.So(elapsed.Milliseconds(), convey.ShouldBeLessThan, 40)
				convey.So(waitFor(func() bool { return len(runner.ran()) == 4 }), convey.ShouldBeTrue)
			})
		})
	})
}
