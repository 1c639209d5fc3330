package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	failures  int
	published []amqp.Publishing
	keys      []string
	closed    bool
}

func (c *fakeChannel) PublishWithContext(
	_ context.Context,
	exchange, key string,
	_, _ bool,
	msg amqp.Publishing,
) error {
	if exchange != ExchangeName {
		return errors.New("unexpected exchange " + exchange)
	}
	if c.failures > 0 {
		c.failures--
		return amqp.ErrClosed
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestRoutingKey(t *testing.T) {
	event := Event{Notification: models.Notification{Type: models.NotificationBookingApproved}}
	assert.Equal(t, "notification.booking_approved", RoutingKey(event))
}

type fakeConn struct {
	closed bool
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// fakeBroker hands out a new channel per connect and records every dial.
type fakeBroker struct {
	channels []*fakeChannel
	conns    []*fakeConn
	dialErr  error
}

func (b *fakeBroker) connect() (io.Closer, amqpChannel, error) {
	if b.dialErr != nil {
		return nil, nil, b.dialErr
	}
	ch := &fakeChannel{}
	conn := &fakeConn{}
	b.channels = append(b.channels, ch)
	b.conns = append(b.conns, conn)
	return conn, ch, nil
}

func testEvent() Event {
	return Event{UserID: 5, Notification: models.Notification{
		Type:      models.NotificationPaymentReceived,
		Title:     "Payment confirmed",
		CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}}
}

func TestPublisherPublishesJSONEvent(t *testing.T) {
	ch := &fakeChannel{}
	publisher := newAMQPPublisher(nil, ch, nil)

	require.NoError(t, publisher.Deliver(context.Background(), testEvent()))

	require.Len(t, ch.published, 1)
	assert.Equal(t, "notification.payment_received", ch.keys[0])
	assert.Equal(t, "application/json", ch.published[0].ContentType)

	var decoded Event
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &decoded))
	assert.Equal(t, int64(5), decoded.UserID)
	assert.Equal(t, "Payment confirmed", decoded.Notification.Title)
}

func TestPublisherReopensClosedChannel(t *testing.T) {
	broker := &fakeBroker{}
	stale := &fakeChannel{failures: 1}
	staleConn := &fakeConn{}
	publisher := newAMQPPublisher(staleConn, stale, broker.connect)
	publisher.delay = time.Millisecond

	require.NoError(t, publisher.Deliver(context.Background(), testEvent()))

	assert.True(t, stale.closed)
	assert.True(t, staleConn.closed)
	assert.Empty(t, stale.published)
	require.Len(t, broker.channels, 1)
	require.Len(t, broker.channels[0].published, 1)

	require.NoError(t, publisher.Deliver(context.Background(), testEvent()))
	assert.Len(t, broker.channels, 1, "a healthy channel is reused")
	assert.Len(t, broker.channels[0].published, 2)
}

func TestPublisherRecoversAfterBrokerComesBack(t *testing.T) {
	broker := &fakeBroker{dialErr: errors.New("connection refused")}
	publisher := newAMQPPublisher(nil, &fakeChannel{failures: 1}, broker.connect)
	publisher.delay = time.Millisecond

	err := publisher.Deliver(context.Background(), testEvent())
	require.Error(t, err)
	assert.Empty(t, broker.channels)

	broker.dialErr = nil
	require.NoError(t, publisher.Deliver(context.Background(), testEvent()))
	require.Len(t, broker.channels, 1)
	assert.Len(t, broker.channels[0].published, 1)
}

func TestPublisherGivesUpAfterAttempts(t *testing.T) {
	ch := &fakeChannel{failures: 10}
	publisher := newAMQPPublisher(nil, ch, nil)
	publisher.delay = time.Millisecond

	err := publisher.Deliver(context.Background(), Event{Notification: models.Notification{Type: "X"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.Empty(t, ch.published)
	assert.True(t, ch.closed)

	publisher.Close()
}

func TestPublisherCloseReleasesConnection(t *testing.T) {
	ch := &fakeChannel{}
	conn := &fakeConn{}
	publisher := newAMQPPublisher(conn, ch, nil)

	publisher.Close()
	assert.True(t, ch.closed)
	assert.True(t, conn.closed)
}
