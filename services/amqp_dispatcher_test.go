package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	out []published
	err error
}

func (c *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.out = append(c.out, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestAMQPDispatcherPublishesPushJob(t *testing.T) {
	ch := &fakeChannel{}
	d := NewAMQPDispatcher(ch, "push_notifications")
	d.now = func() time.Time { return time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC) }

	err := d.Send(context.Background(), "sam-device", "February", "You have a special message waiting!", map[string]string{"monthIndex": "2"})
	require.NoError(t, err)

	require.Len(t, ch.out, 1)
	p := ch.out[0]
	assert.Equal(t, "", p.exchange)
	assert.Equal(t, "push_notifications", p.key)
	assert.Equal(t, "application/json", p.msg.ContentType)
	assert.Equal(t, amqp.Persistent, p.msg.DeliveryMode)

	var job PushJob
	require.NoError(t, json.Unmarshal(p.msg.Body, &job))
	assert.Equal(t, "sam-device", job.TargetHandle)
	assert.Equal(t, "February", job.Title)
	assert.Equal(t, "2", job.Data["monthIndex"])
	assert.True(t, d.now().Equal(job.EnqueuedAt))
}

func TestAMQPDispatcherErrors(t *testing.T) {
	ctx := context.Background()

	d := NewAMQPDispatcher(&fakeChannel{err: errors.New("channel closed")}, "q")
	assert.Error(t, d.Send(ctx, "h", "t", "b", nil))

	d = NewAMQPDispatcher(&fakeChannel{}, "q")
	assert.Error(t, d.Send(ctx, "", "t", "b", nil))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, d.Send(cancelled, "h", "t", "b", nil), context.Canceled)
}
