package main

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-friendship/pkg/helpers"
)

// attemptsHeader counts failed deliveries of a message.
const attemptsHeader = "x-attempts"

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// settler turns a handle outcome into a broker action. Failed sends go to
// the delay queue with a bumped attempt count and land in the dead queue
// once maxAttempts is reached.
type settler struct {
	pub         publisher
	queue       string
	maxAttempts int
	logger      *logrus.Logger
}

func attempts(h amqp.Table) int {
	switch v := h[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (s *settler) settle(ctx context.Context, ack acker, msg amqp.Delivery, o outcome) {
	switch o {
	case outcomeAck:
		_ = ack.Ack(false)
		return
	case outcomeDrop:
		_ = ack.Nack(false, false)
		return
	}

	n := attempts(msg.Headers) + 1
	target := helpers.RetryQueue(s.queue)
	if n >= s.maxAttempts {
		target = helpers.DeadQueue(s.queue)
		s.logger.WithFields(logrus.Fields{"attempts": n, "queue": target}).Error("notification gave up")
	}

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[attemptsHeader] = int32(n)

	err := s.pub.PublishWithContext(ctx, "", target, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  msg.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageId,
		Timestamp:    msg.Timestamp,
		Body:         msg.Body,
	})
	if err != nil {
		// keep the message on the work queue rather than lose it
		s.logger.WithError(err).Warn("republish failed")
		_ = ack.Nack(false, true)
		return
	}
	_ = ack.Ack(false)
}
