package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Sender delivers the emails the consumer is responsible for.
type Sender interface {
    SendOTP(ctx context.Context, email, code string) error
    SendReceipt(ctx context.Context, email string, ev BookingConfirmedEvent) error
}

// EmailLookup resolves a client's email address for receipts.
type EmailLookup func(ctx context.Context, userID uint64) (string, error)

// Consumer drains booking.confirmed and otp.requested. Confirmed bookings are
// appended to a booking log file and receipted by email; OTP requests are
// mailed.
type Consumer struct {
    url     string
    sender  Sender
    emails  EmailLookup
    logPath string
    log     *zap.Logger
}

// NewConsumer builds a consumer. An empty logPath disables the booking log file.
func NewConsumer(url string, sender Sender, emails EmailLookup, logPath string, log *zap.Logger) *Consumer {
    return &Consumer{url: url, sender: sender, emails: emails, logPath: logPath, log: log}
}

// Run connects to the broker and consumes until ctx is cancelled, dialing
// again with exponential backoff whenever the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.Warn("consumer dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.log.Warn("set qos failed", zap.Error(err))
    }

    bookings, err := subscribe(ch, BookingConfirmedQueue)
    if err != nil {
        return err
    }
    otps, err := subscribe(ch, OTPRequestedQueue)
    if err != nil {
        return err
    }

    for {
        var (
            d     amqp.Delivery
            ok    bool
            queue string
        )
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok = <-bookings:
            queue = BookingConfirmedQueue
        case d, ok = <-otps:
            queue = OTPRequestedQueue
        }
        if !ok {
            return errors.New("deliveries channel closed")
        }
        if err := c.Handle(ctx, queue, d.Body); err != nil {
            c.log.Error("handle message failed", zap.String("queue", queue), zap.Error(err))
            _ = d.Nack(false, false) // reject without requeue to avoid tight loops
            continue
        }
        _ = d.Ack(false)
    }
}

func subscribe(ch *amqp.Channel, queue string) (<-chan amqp.Delivery, error) {
    if _, err := declare(ch, queue); err != nil {
        return nil, fmt.Errorf("queue declare %s: %w", queue, err)
    }
    msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
    if err != nil {
        return nil, fmt.Errorf("queue consume %s: %w", queue, err)
    }
    return msgs, nil
}

// Handle processes one message body received on queue.
func (c *Consumer) Handle(ctx context.Context, queue string, body []byte) error {
    switch queue {
    case OTPRequestedQueue:
        var ev OTPRequestedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        if ev.Email == "" || ev.Code == "" {
            return errors.New("otp event without email or code")
        }
        return c.sender.SendOTP(ctx, ev.Email, ev.Code)
    case BookingConfirmedQueue:
        var ev BookingConfirmedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        return c.handleBooking(ctx, ev)
    default:
        return fmt.Errorf("unknown queue %q", queue)
    }
}

func (c *Consumer) handleBooking(ctx context.Context, ev BookingConfirmedEvent) error {
    c.log.Info("booking confirmed",
        zap.Uint64("booking_id", ev.BookingID),
        zap.Uint64("client_id", ev.ClientID),
        zap.String("reference_number", ev.ReferenceNumber))
    if err := c.appendLog(ev); err != nil {
        return err
    }
    if c.emails == nil {
        return nil
    }
    email, err := c.emails(ctx, ev.ClientID)
    if err != nil {
        return fmt.Errorf("lookup client email: %w", err)
    }
    if err := c.sender.SendReceipt(ctx, email, ev); err != nil {
        // the log line is written; a redelivery would duplicate it
        c.log.Warn("receipt email failed", zap.Uint64("booking_id", ev.BookingID), zap.Error(err))
    }
    return nil
}

func (c *Consumer) appendLog(ev BookingConfirmedEvent) error {
    if c.logPath == "" {
        return nil
    }
    if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    line := fmt.Sprintf("[%s] Booking confirmed | booking_id=%d | client_id=%d | vehicle_id=%d | reference=%s | dates=%s..%s | total=%.2f | method=%s\n",
        ev.ConfirmedAt, ev.BookingID, ev.ClientID, ev.VehicleID, ev.ReferenceNumber, ev.StartDate, ev.EndDate, ev.TotalAmount, ev.PaymentMethod)
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}
