package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"insta-relay/internal/models"
)

var (
	// ErrQueueFull the buffer is full; the caller should tell the user to retry.
	ErrQueueFull = errors.New("queue: full")
	// ErrDuplicate an identical request from the same chat is still in flight.
	ErrDuplicate = errors.New("queue: duplicate request in flight")
	// ErrStopped the queue no longer accepts tasks.
	ErrStopped = errors.New("queue: stopped")
)

// Task is one inbound message waiting for a worker.
type Task struct {
	Message    models.InboundMessage
	EnqueuedAt time.Time
}

// Handler processes a task. It runs on a worker goroutine.
type Handler func(ctx context.Context, task Task)

// Queue is a bounded worker pool with in-flight de-duplication.
type Queue struct {
	tasks    chan Task
	inflight sync.Map // task key -> struct{}
	workers  int
	handler  Handler

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewQueue creates a queue with the given buffer capacity and worker count.
func NewQueue(capacity, workers int, handler Handler) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		tasks:   make(chan Task, capacity),
		workers: workers,
		handler: handler,
	}
}

// Enqueue never blocks.
func (q *Queue) Enqueue(task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrStopped
	}

	key := computeTaskKey(task.Message)
	if _, exists := q.inflight.LoadOrStore(key, struct{}{}); exists {
		logrus.WithField("key", key).Debug("Duplicate task skipped")
		tasksRejectedCounter.WithLabelValues("duplicate").Inc()
		return ErrDuplicate
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	select {
	case q.tasks <- task:
		queueDepthGauge.Set(float64(len(q.tasks)))
		return nil
	default:
		q.inflight.Delete(key)
		tasksRejectedCounter.WithLabelValues("full").Inc()
		return ErrQueueFull
	}
}

// Start launches the workers. Tasks get ctx's values but not its
// cancellation; workers exit once Stop has closed the buffer.
func (q *Queue) Start(ctx context.Context) {
	taskCtx := context.WithoutCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(taskCtx, i)
	}
	logrus.WithField("workers", q.workers).Info("Queue workers started")
}

// Stop rejects new tasks, lets workers drain the buffer and waits for them.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		close(q.tasks)
	}
	pending := len(q.tasks)
	q.mu.Unlock()
	if pending > 0 {
		logrus.WithField("pending", pending).Info("Draining queued tasks")
	}
	q.wg.Wait()
}

// Len is the number of buffered tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for task := range q.tasks {
		queueDepthGauge.Set(float64(len(q.tasks)))
		q.run(ctx, id, task)
	}
}

func (q *Queue) run(ctx context.Context, id int, task Task) {
	key := computeTaskKey(task.Message)
	defer q.inflight.Delete(key)
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"worker":     id,
				"request_id": task.Message.RequestID,
			}).Errorf("Task handler panicked: %v", r)
		}
	}()

	queueWaitHist.Observe(time.Since(task.EnqueuedAt).Seconds())
	q.handler(ctx, task)
}

// computeTaskKey identifies a request by chat and payload, so a user tapping
// the same button twice does not start two lookups.
func computeTaskKey(m models.InboundMessage) string {
	payload := m.Text
	if m.IsCallback() {
		payload = "cb:" + m.CallbackData
	}
	return strconv.FormatInt(m.ChatID, 10) + "|" + payload
}
