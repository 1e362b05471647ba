package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/infrastructure/memstore"
	"github.com/go-redemption-api/internal/infrastructure/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Send(ctx context.Context, msg domain.OutboundMessage) error {
	return m.Called(ctx, msg).Error(0)
}

type mockMedia struct{ mock.Mock }

func (m *mockMedia) Render(ctx context.Context, key, payload string) (string, error) {
	args := m.Called(ctx, key, payload)
	return args.String(0), args.Error(1)
}

func newTestService(n *mockNotifier, media mediaRenderer, q *memstore.Queue, st *memstore.DeliveryRepo) Service {
	return NewService(ServiceDeps{
		Queue:      q,
		Notifier:   n,
		Media:      media,
		Store:      st,
		Metrics:    metrics.Nop{},
		MaxRetries: 3,
	})
}

func TestHandle_SendsWithRenderedImage(t *testing.T) {
	n, md := &mockNotifier{}, &mockMedia{}
	q, st := memstore.NewQueue(4), memstore.NewDeliveryRepo()
	md.On("Render", mock.Anything, "qr/ticket/t1.png", "alloc-1").Return("https://media/t1.png", nil)
	n.On("Send", mock.Anything, domain.OutboundMessage{
		Phone: "+911", Name: "Asha", Text: "Your ticket", ImageURL: "https://media/t1.png",
	}).Return(nil)

	err := newTestService(n, md, q, st).Handle(context.Background(), domain.DeliveryTask{
		TaskID: "t1", Kind: domain.TaskTicket, Phone: "+911", Name: "Asha", Text: "Your ticket", Payload: "alloc-1",
	})
	require.NoError(t, err)

	rec, err := st.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySent, rec.Status)
	assert.Equal(t, "https://media/t1.png", rec.ImageURL)
	assert.Empty(t, q.Drain())
	n.AssertExpectations(t)
}

func TestHandle_FailureIsRequeued(t *testing.T) {
	n := &mockNotifier{}
	q, st := memstore.NewQueue(4), memstore.NewDeliveryRepo()
	n.On("Send", mock.Anything, mock.Anything).Return(errors.New("provider down"))

	err := newTestService(n, nil, q, st).Handle(context.Background(), domain.DeliveryTask{TaskID: "t2", Kind: domain.TaskLink, Phone: "+911"})
	require.NoError(t, err)

	waitQueued(t, q, 1)
	requeued := q.Drain()
	require.Len(t, requeued, 1)
	assert.Equal(t, 1, requeued[0].Attempts)
	rec, _ := st.Get(context.Background(), "t2")
	assert.Equal(t, domain.DeliveryFailed, rec.Status)
	assert.Equal(t, "provider down", rec.LastError)
}

func TestHandle_DeadLettersAfterMaxRetries(t *testing.T) {
	n := &mockNotifier{}
	q, st := memstore.NewQueue(4), memstore.NewDeliveryRepo()
	n.On("Send", mock.Anything, mock.Anything).Return(errors.New("invalid number"))

	err := newTestService(n, nil, q, st).Handle(context.Background(), domain.DeliveryTask{TaskID: "t3", Kind: domain.TaskVoucher, Phone: "+911", Attempts: 2})
	require.NoError(t, err)

	assert.Empty(t, q.Drain())
	rec, _ := st.Get(context.Background(), "t3")
	assert.Equal(t, domain.DeliveryDead, rec.Status)
	assert.Equal(t, 3, rec.Attempts)
}

func TestHandle_RenderFailureCountsAsSendFailure(t *testing.T) {
	n, md := &mockNotifier{}, &mockMedia{}
	q, st := memstore.NewQueue(4), memstore.NewDeliveryRepo()
	md.On("Render", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("s3 down"))

	err := newTestService(n, md, q, st).Handle(context.Background(), domain.DeliveryTask{TaskID: "t4", Kind: domain.TaskTicket, Payload: "x"})
	require.NoError(t, err)
	n.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	waitQueued(t, q, 1)
	assert.Len(t, q.Drain(), 1)
}

func TestHandle_BackoffDoesNotHoldWorker(t *testing.T) {
	n := &mockNotifier{}
	q, st := memstore.NewQueue(4), memstore.NewDeliveryRepo()
	n.On("Send", mock.Anything, mock.Anything).Return(errors.New("provider down"))
	svc := NewService(ServiceDeps{
		Queue: q, Notifier: n, Store: st, Metrics: metrics.Nop{}, MaxRetries: 5, Backoff: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	require.NoError(t, svc.Handle(ctx, domain.DeliveryTask{TaskID: "t6", Kind: domain.TaskLink, Phone: "+911"}))
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, q.Drain())

	// Shutting down puts the waiting retry back on the queue right away.
	cancel()
	waitQueued(t, q, 1)
	requeued := q.Drain()
	require.Len(t, requeued, 1)
	assert.Equal(t, "t6", requeued[0].TaskID)
	assert.Equal(t, 1, requeued[0].Attempts)
}

func waitQueued(t *testing.T, q *memstore.Queue, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		l, _ := q.Len(context.Background())
		return l == n
	}, time.Second, 5*time.Millisecond)
}

func TestRun_StopsWithContext(t *testing.T) {
	n := &mockNotifier{}
	n.On("Send", mock.Anything, mock.Anything).Return(nil)
	q, st := memstore.NewQueue(4), memstore.NewDeliveryRepo()
	require.NoError(t, q.Enqueue(context.Background(), domain.DeliveryTask{TaskID: "t5", Kind: domain.TaskLink}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newTestService(n, nil, q, st).Run(ctx, 2)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := st.Get(context.Background(), "t5")
		return err == nil
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
