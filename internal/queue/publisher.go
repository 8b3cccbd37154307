package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const reservationQueueName = "reservation.created"

// Publisher pushes reservation events to RabbitMQ.  Publishing is
// best effort: every error is logged and returned so callers can
// ignore failures without interrupting the main request flow.
type Publisher struct {
	url    string
	logger zerolog.Logger
}

// NewPublisher returns a Publisher that dials the broker at the given
// AMQP URL on each publish.  Dialing per publish keeps the publisher
// stateless; the volume of committed reservations does not justify a
// pooled channel.
func NewPublisher(url string, logger zerolog.Logger) *Publisher {
	return &Publisher{url: url, logger: logger}
}

// PushReservationCreated publishes a ReservationCreatedEvent to the
// reservation.created queue.  The queue is declared durable and the
// message persistent so notifications survive a broker restart.
func (p *Publisher) PushReservationCreated(ctx context.Context, ev ReservationCreatedEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.logger.Error().Err(err).Msg("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Error().Err(err).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		reservationQueueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		p.logger.Error().Err(err).Msg("rabbitmq: queue declare failed")
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
	if err := ch.PublishWithContext(ctx,
		"",                   // default exchange
		reservationQueueName, // routing key = queue name
		false,                // mandatory
		false,                // immediate
		pub,
	); err != nil {
		p.logger.Error().Err(err).Msg("rabbitmq: publish failed")
		return err
	}
	return nil
}
