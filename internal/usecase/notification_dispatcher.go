package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"softhire-backend/internal/domain"
	"softhire-backend/pkg/metrics"

	"go.uber.org/zap"
)

var (
	ErrDispatcherClosed  = errors.New("notification dispatcher closed")
	ErrDispatchQueueFull = errors.New("notification queue full")
)

type notificationJob struct {
	ctx      context.Context
	kind     notificationKind
	snapshot domain.ApplicationSnapshot
}

// NotificationDispatcher delivers notifications on background workers so
// that a slow or failing mail transport never blocks or fails the workflow.
// Each delivery is bounded by its own timeout.
type NotificationDispatcher struct {
	next    domain.Notifier
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan notificationJob
	wg     sync.WaitGroup
}

func NewNotificationDispatcher(next domain.Notifier, workers, queueSize int, timeout time.Duration, log *zap.Logger, m *metrics.Metrics) *NotificationDispatcher {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &NotificationDispatcher{
		next:    next,
		timeout: timeout,
		log:     log,
		metrics: m,
		queue:   make(chan notificationJob, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

func (d *NotificationDispatcher) NotifySubmission(ctx context.Context, snapshot domain.ApplicationSnapshot) error {
	return d.enqueue(ctx, notifySubmission, snapshot)
}

func (d *NotificationDispatcher) NotifyPayment(ctx context.Context, snapshot domain.ApplicationSnapshot) error {
	return d.enqueue(ctx, notifyPayment, snapshot)
}

func (d *NotificationDispatcher) enqueue(ctx context.Context, kind notificationKind, snapshot domain.ApplicationSnapshot) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.Notification(string(kind), "dropped")
		return ErrDispatcherClosed
	}

	// Request cancellation must not abort a delivery that outlives the request.
	job := notificationJob{ctx: context.WithoutCancel(ctx), kind: kind, snapshot: snapshot}
	select {
	case d.queue <- job:
		return nil
	default:
		d.metrics.Notification(string(kind), "dropped")
		return ErrDispatchQueueFull
	}
}

func (d *NotificationDispatcher) run() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *NotificationDispatcher) deliver(job notificationJob) {
	ctx, cancel := context.WithTimeout(job.ctx, d.timeout)
	defer cancel()

	var err error
	switch job.kind {
	case notifySubmission:
		err = d.next.NotifySubmission(ctx, job.snapshot)
	case notifyPayment:
		err = d.next.NotifyPayment(ctx, job.snapshot)
	}

	if err != nil {
		d.metrics.Notification(string(job.kind), "failed")
		d.log.Error("notification delivery failed",
			zap.String("kind", string(job.kind)),
			zap.String("application_id", job.snapshot.Application.ID),
			zap.Error(err))
		return
	}
	d.metrics.Notification(string(job.kind), "sent")
	d.log.Info("notification delivered",
		zap.String("kind", string(job.kind)),
		zap.String("application_id", job.snapshot.Application.ID))
}

// Shutdown stops accepting work and waits for queued deliveries to finish
// or for ctx to expire.
func (d *NotificationDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
