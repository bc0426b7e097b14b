package queue

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Publisher sends domain events to RabbitMQ. Each publish dials its own
// connection, so a broker outage only fails the publish at hand. Errors are
// logged and returned to let callers decide whether to ignore them.
type Publisher struct {
    url string
    log *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
    return &Publisher{url: url, log: log}
}

// PublishBookingConfirmed publishes ev to the booking.confirmed queue.
func (p *Publisher) PublishBookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error {
    return p.publish(ctx, BookingConfirmedQueue, ev)
}

// SendOTP hands the code to the consumer through the otp.requested queue, so
// the request path never waits on SMTP.
func (p *Publisher) SendOTP(ctx context.Context, email, code string) error {
    return p.publish(ctx, OTPRequestedQueue, OTPRequestedEvent{
        Email:       email,
        Code:        code,
        RequestedAt: time.Now().UTC().Format(time.RFC3339),
    })
}

func (p *Publisher) publish(ctx context.Context, queue string, v any) error {
    log := p.log.With(zap.String("queue", queue))
    conn, err := amqp.Dial(p.url)
    if err != nil {
        log.Warn("rabbitmq dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Warn("rabbitmq channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    if _, err := declare(ch, queue); err != nil {
        log.Warn("rabbitmq queue declare failed", zap.Error(err))
        return err
    }

    body, err := json.Marshal(v)
    if err != nil {
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
        log.Warn("rabbitmq publish failed", zap.Error(err))
        return err
    }
    return nil
}

// declare is idempotent; queues are durable so messages survive broker restarts.
func declare(ch *amqp.Channel, queue string) (amqp.Queue, error) {
    return ch.QueueDeclare(queue, true, false, false, false, nil)
}
