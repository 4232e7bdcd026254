// Package service publishes domain events to RabbitMQ.  Errors are logged and
// returned so callers can ignore them without interrupting the request flow.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/hit-counter/internal/metrics"
	"github.com/iliyamo/hit-counter/internal/queue"
)

// Publisher sends HitRecordedEvents.  A Publisher with an empty URL is
// disabled and Publish returns nil without touching the network.
type Publisher struct {
	url         string
	dialTimeout time.Duration
	log         *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, dialTimeout: 2 * time.Second, log: log.Named("publisher")}
}

// Enabled reports whether a broker URL is configured.
func (p *Publisher) Enabled() bool { return p.url != "" }

// Publish sends ev to the hits.recorded queue as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev queue.HitRecordedEvent) error {
	if !p.Enabled() {
		return nil
	}
	err := p.publish(ctx, ev)
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return err
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
	return nil
}

func (p *Publisher) publish(ctx context.Context, ev queue.HitRecordedEvent) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.dialTimeout)})
	if err != nil {
		p.log.Warn("dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queue.HitsQueueName, // name
		true,                // durable
		false,               // autoDelete
		false,               // exclusive
		false,               // noWait
		nil,                 // args
	); err != nil {
		p.log.Warn("queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.HitsQueueName, false, false, pub); err != nil {
		p.log.Warn("publish failed", zap.Error(err))
		return err
	}
	return nil
}
