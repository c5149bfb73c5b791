package usecase_test

import (
	"context"
	"testing"
	"time"

	"softhire-backend/internal/domain"
	"softhire-backend/internal/usecase"
	"softhire-backend/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingNotifier holds every delivery until release is closed.
type blockingNotifier struct {
	release chan struct{}
	started chan struct{}
	ctxErr  chan error
}

func newBlockingNotifier() *blockingNotifier {
	return &blockingNotifier{
		release: make(chan struct{}),
		started: make(chan struct{}, 10),
		ctxErr:  make(chan error, 10),
	}
}

func (n *blockingNotifier) NotifySubmission(ctx context.Context, _ domain.ApplicationSnapshot) error {
	n.started <- struct{}{}
	select {
	case <-n.release:
		n.ctxErr <- ctx.Err()
		return nil
	case <-ctx.Done():
		n.ctxErr <- ctx.Err()
		return ctx.Err()
	}
}

func (n *blockingNotifier) NotifyPayment(ctx context.Context, s domain.ApplicationSnapshot) error {
	return n.NotifySubmission(ctx, s)
}

func snapshotFor(id string) domain.ApplicationSnapshot {
	return domain.ApplicationSnapshot{Application: domain.SponsorshipApplication{ID: id}}
}

func TestNotificationDispatcher_DeliversAfterRequestEnds(t *testing.T) {
	next := &recordingNotifier{}
	d := usecase.NewNotificationDispatcher(next, 1, 10, time.Second, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.NotifySubmission(ctx, snapshotFor("app-1")))
	require.NoError(t, d.NotifyPayment(ctx, snapshotFor("app-1")))
	cancel()

	require.NoError(t, d.Shutdown(context.Background()))
	subs, payments := next.counts()
	assert.Equal(t, 1, subs)
	assert.Equal(t, 1, payments)
}

func TestNotificationDispatcher_IgnoresCallerCancellation(t *testing.T) {
	next := newBlockingNotifier()
	d := usecase.NewNotificationDispatcher(next, 1, 1, time.Second, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.NotifySubmission(ctx, snapshotFor("app-1")))
	<-next.started
	cancel()
	close(next.release)

	assert.NoError(t, <-next.ctxErr)
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestNotificationDispatcher_BoundsEachDelivery(t *testing.T) {
	next := newBlockingNotifier()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	d := usecase.NewNotificationDispatcher(next, 1, 1, 20*time.Millisecond, nil, m)

	require.NoError(t, d.NotifyPayment(context.Background(), snapshotFor("app-1")))
	assert.ErrorIs(t, <-next.ctxErr, context.DeadlineExceeded)

	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("payment", "failed")))
}

func TestNotificationDispatcher_QueueFull(t *testing.T) {
	next := newBlockingNotifier()
	d := usecase.NewNotificationDispatcher(next, 1, 1, time.Second, nil, nil)
	defer func() {
		close(next.release)
		_ = d.Shutdown(context.Background())
	}()

	require.NoError(t, d.NotifySubmission(context.Background(), snapshotFor("in-flight")))
	<-next.started
	require.NoError(t, d.NotifySubmission(context.Background(), snapshotFor("queued")))

	err := d.NotifySubmission(context.Background(), snapshotFor("dropped"))
	assert.ErrorIs(t, err, usecase.ErrDispatchQueueFull)
}

func TestNotificationDispatcher_RejectsAfterShutdown(t *testing.T) {
	d := usecase.NewNotificationDispatcher(&recordingNotifier{}, 1, 1, time.Second, nil, nil)
	require.NoError(t, d.Shutdown(context.Background()))
	require.NoError(t, d.Shutdown(context.Background()))

	err := d.NotifySubmission(context.Background(), snapshotFor("late"))
	assert.ErrorIs(t, err, usecase.ErrDispatcherClosed)
}

func TestNotificationDispatcher_ShutdownHonoursDeadline(t *testing.T) {
	next := newBlockingNotifier()
	d := usecase.NewNotificationDispatcher(next, 1, 1, time.Minute, nil, nil)
	require.NoError(t, d.NotifySubmission(context.Background(), snapshotFor("slow")))
	<-next.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)

	close(next.release)
}
