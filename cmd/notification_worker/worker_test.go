package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-ddd-friendship/pkg/mailer"
	mailtpl "github.com/oksasatya/go-ddd-friendship/pkg/mailer/templates"
)

type sent struct{ to, subject, text, html string }

type fakeSender struct {
	sent []sent
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, text, html string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{to, subject, text, html})
	return nil
}

func newWorker(s mailer.Sender) *worker {
	logger, _ := test.NewNullLogger()
	return &worker{sender: s, logger: logger}
}

func encode(t *testing.T, job mailer.EmailJob) []byte {
	t.Helper()
	b, err := json.Marshal(job)
	require.NoError(t, err)
	return b
}

func TestHandleRendersTemplate(t *testing.T) {
	s := &fakeSender{}
	data := mailtpl.NewFriendshipData("Friends", "Bob", "bob@example.com", "Alice", "alice@example.com",
		mailtpl.WithActionURL("http://localhost/pending-requests/"))

	got := newWorker(s).handle(context.Background(), encode(t, mailer.EmailJob{
		To:       "bob@example.com",
		Template: mailtpl.FriendRequestReceived,
		Data:     mailtpl.ToMap(data),
	}))

	assert.Equal(t, outcomeAck, got)
	require.Len(t, s.sent, 1)
	assert.Equal(t, "bob@example.com", s.sent[0].to)
	assert.Contains(t, s.sent[0].subject, "Alice")
	assert.Contains(t, s.sent[0].html, "http://localhost/pending-requests/")
}

func TestHandleRawMessage(t *testing.T) {
	s := &fakeSender{}
	got := newWorker(s).handle(context.Background(), encode(t, mailer.EmailJob{To: "x@example.com", Subject: "Hi", Text: "hello"}))
	assert.Equal(t, outcomeAck, got)
	assert.Equal(t, "Hi", s.sent[0].subject)
}

func TestHandleDropsUnusableMessages(t *testing.T) {
	w := newWorker(&fakeSender{})
	ctx := context.Background()

	assert.Equal(t, outcomeDrop, w.handle(ctx, []byte("{not json")))
	assert.Equal(t, outcomeDrop, w.handle(ctx, encode(t, mailer.EmailJob{Subject: "no recipient", Text: "x"})))
	assert.Equal(t, outcomeDrop, w.handle(ctx, encode(t, mailer.EmailJob{To: "x@example.com", Template: "missing_template"})))
	assert.Equal(t, outcomeDrop, w.handle(ctx, encode(t, mailer.EmailJob{To: "x@example.com"})))
}

func TestHandleRetriesSendFailures(t *testing.T) {
	w := newWorker(&fakeSender{err: errors.New("mailgun 503")})
	got := w.handle(context.Background(), encode(t, mailer.EmailJob{To: "x@example.com", Subject: "Hi", Text: "hello"}))
	assert.Equal(t, outcomeRetry, got)
}

type published struct {
	key string
	msg amqp.Publishing
}

type fakePublisher struct {
	out []published
	err error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, published{key, msg})
	return nil
}

type fakeAck struct{ acked, nacked, requeued bool }

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }
func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}

func newSettler(pub publisher) *settler {
	logger, _ := test.NewNullLogger()
	return &settler{pub: pub, queue: "notifications", maxAttempts: 3, logger: logger}
}

func TestSettleRetryGoesToDelayQueue(t *testing.T) {
	pub := &fakePublisher{}
	ack := &fakeAck{}
	msg := amqp.Delivery{Body: []byte(`{"to":"b@example.com"}`), MessageId: "m1"}

	newSettler(pub).settle(context.Background(), ack, msg, outcomeRetry)

	require.Len(t, pub.out, 1)
	assert.Equal(t, "notifications.retry", pub.out[0].key)
	assert.Equal(t, int32(1), pub.out[0].msg.Headers[attemptsHeader])
	assert.Equal(t, msg.Body, pub.out[0].msg.Body)
	assert.Equal(t, "m1", pub.out[0].msg.MessageId)
	assert.Equal(t, amqp.Persistent, pub.out[0].msg.DeliveryMode)
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestSettleGivesUpAfterMaxAttempts(t *testing.T) {
	pub := &fakePublisher{}
	ack := &fakeAck{}
	msg := amqp.Delivery{Headers: amqp.Table{attemptsHeader: int32(2)}, Body: []byte("{}")}

	newSettler(pub).settle(context.Background(), ack, msg, outcomeRetry)

	require.Len(t, pub.out, 1)
	assert.Equal(t, "notifications.dead", pub.out[0].key)
	assert.Equal(t, int32(3), pub.out[0].msg.Headers[attemptsHeader])
	assert.True(t, ack.acked)
}

func TestSettleRequeuesWhenRepublishFails(t *testing.T) {
	ack := &fakeAck{}
	newSettler(&fakePublisher{err: errors.New("channel closed")}).
		settle(context.Background(), ack, amqp.Delivery{}, outcomeRetry)

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued)
}

func TestSettleAckAndDrop(t *testing.T) {
	pub := &fakePublisher{}
	s := newSettler(pub)

	ok := &fakeAck{}
	s.settle(context.Background(), ok, amqp.Delivery{}, outcomeAck)
	assert.True(t, ok.acked)

	bad := &fakeAck{}
	s.settle(context.Background(), bad, amqp.Delivery{}, outcomeDrop)
	assert.True(t, bad.nacked)
	assert.False(t, bad.requeued)
	assert.Empty(t, pub.out)
}

func TestAttemptsHeaderTypes(t *testing.T) {
	assert.Equal(t, 0, attempts(nil))
	assert.Equal(t, 2, attempts(amqp.Table{attemptsHeader: int32(2)}))
	assert.Equal(t, 4, attempts(amqp.Table{attemptsHeader: int64(4)}))
	assert.Equal(t, 0, attempts(amqp.Table{attemptsHeader: "x"}))
}
