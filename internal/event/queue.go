package event

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/GudMeong/Anjani/internal/infra"
)

// Task is a unit of off-path work, e.g. scoring a message with the
// classifier. Tasks must honor ctx cancellation themselves.
type Task func(ctx context.Context)

// Queue runs detached tasks on a fixed worker pool. Enqueued work
// survives the triggering update; cancelling the update's context does
// not cancel the task.
type Queue struct {
	tasks   chan Task
	workers int

	mu        sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

func NewQueue(size int, workers int) *Queue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		tasks:   make(chan Task, size),
		workers: workers,
	}
}

// Enqueue schedules a task without blocking the caller. Returns false
// when the queue is saturated and the task was dropped.
func (q *Queue) Enqueue(task Task) bool {
	if task == nil {
		return false
	}
	select {
	case q.tasks <- task:
		return true
	default:
		log.WithField("queue_len", len(q.tasks)).Warn("task queue is full, dropping task")
		return false
	}
}

func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.runCancel = cancel

	for i := 0; i < q.workers; i++ {
		q.workersWg.Add(1)
		go func() {
			defer q.workersWg.Done()
			infra.GoRecoverable(-1, "event_queue_worker", func() {
				q.run(runCtx)
			})
		}()
	}

	q.started = true
	return nil
}

func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return nil
	}
	q.started = false
	cancel := q.runCancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			if task == nil {
				continue
			}
			task(ctx)
		}
	}
}
