package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WorkerStatus mirrors the idle/working lifecycle used throughout the
// example pack's queue workers (_examples/codeready-toolchain-tarsy/
// pkg/queue/worker.go).
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Handler processes a single queue message. Returning an error leaves the
// message un-acked so a later redelivery can retry it (at-least-once, per
// spec.md §5).
type Handler func(ctx context.Context, msg Message) error

// Consumer is the subset of Queue a Worker needs, so tests can substitute
// a fake stream without a live Redis connection.
type Consumer interface {
	Consume(ctx context.Context, consumer string, block time.Duration) ([]Message, error)
	Ack(ctx context.Context, id string) error
}

// Worker polls one Consumer and dispatches each message to handler, one
// at a time, acking on success. Shape (Stop via sync.Once,
// RWMutex-guarded health snapshot, stopCh-driven run loop) is adapted
// from tarsy's pkg/queue.Worker, generalized from its Ent-session polling
// to a generic Redis-stream Handler.
type Worker struct {
	id      string
	queue   Consumer
	handler Handler

	pollBlock time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                sync.RWMutex
	status            WorkerStatus
	messagesProcessed int
	lastActivity      time.Time
}

// Health is a point-in-time snapshot of a Worker's status.
type Health struct {
	ID                string
	Status            WorkerStatus
	MessagesProcessed int
	LastActivity      time.Time
}

// NewWorker creates a Worker bound to queue, dispatching to handler. id
// identifies this worker as a consumer name within the queue's consumer
// group.
func NewWorker(id string, q Consumer, handler Handler) *Worker {
	return &Worker{
		id:           id,
		queue:        q,
		handler:      handler,
		pollBlock:    2 * time.Second,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its loop to exit. Safe to
// call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns a snapshot of the worker's current state.
func (w *Worker) Health() Health {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Health{
		ID:                w.id,
		Status:            w.status,
		MessagesProcessed: w.messagesProcessed,
		LastActivity:      w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id)
	log.Info("queue worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("queue worker stopping")
			return
		case <-ctx.Done():
			log.Info("queue worker context cancelled")
			return
		default:
			w.pollAndProcess(ctx, log)
		}
	}
}

func (w *Worker) pollAndProcess(ctx context.Context, log *slog.Logger) {
	msgs, err := w.queue.Consume(ctx, w.id, w.pollBlock)
	if err != nil {
		log.Error("queue consume failed", "error", err)
		w.sleep(time.Second)
		return
	}

	for _, msg := range msgs {
		w.setStatus(WorkerStatusWorking)
		if err := w.handler(ctx, msg); err != nil {
			log.Error("queue handler failed, leaving message for redelivery", "message_id", msg.ID, "error", err)
			continue
		}
		if err := w.queue.Ack(ctx, msg.ID); err != nil {
			log.Error("queue ack failed", "message_id", msg.ID, "error", err)
		}
		w.mu.Lock()
		w.messagesProcessed++
		w.lastActivity = time.Now()
		w.mu.Unlock()
	}
	w.setStatus(WorkerStatusIdle)
}

func (w *Worker) setStatus(s WorkerStatus) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}
