package amqpqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redemption-api/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishing_IsPersistentJSON(t *testing.T) {
	task := domain.DeliveryTask{TaskID: "t1", Kind: domain.TaskVoucher, Phone: "+911"}
	pub, err := publishing(task)
	require.NoError(t, err)
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, "t1", pub.MessageId)

	var back domain.DeliveryTask
	require.NoError(t, json.Unmarshal(pub.Body, &back))
	assert.Equal(t, task, back)
}

func TestHandleDelivery(t *testing.T) {
	var seen string
	err := handleDelivery(context.Background(), []byte(`{"id":"t9","kind":"ticket"}`), func(_ context.Context, tk domain.DeliveryTask) error {
		seen = tk.TaskID
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "t9", seen)

	err = handleDelivery(context.Background(), []byte(`not json`), func(context.Context, domain.DeliveryTask) error { return nil })
	assert.ErrorContains(t, err, "unmarshal")

	boom := errors.New("boom")
	err = handleDelivery(context.Background(), []byte(`{}`), func(context.Context, domain.DeliveryTask) error { return boom })
	assert.ErrorIs(t, err, boom)
}
