package queue

import (
    "context"
    "fmt"
    "net"
    "net/smtp"
    "strings"

    "go.uber.org/zap"
)

// SMTPConfig addresses the outgoing mail relay.
type SMTPConfig struct {
    Host     string
    Port     string
    Username string
    Password string
    From     string
}

// Mailer writes plain-text emails through an SMTP relay. With no host
// configured it only logs what it would have sent.
type Mailer struct {
    cfg  SMTPConfig
    log  *zap.Logger
    send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg SMTPConfig, log *zap.Logger) *Mailer {
    return &Mailer{cfg: cfg, log: log, send: smtp.SendMail}
}

// SendOTP mails a passcode.
func (m *Mailer) SendOTP(ctx context.Context, email, code string) error {
    body := fmt.Sprintf("Your verification code is %s.\r\nIt expires in 10 minutes. If you did not request it, ignore this email.\r\n", code)
    return m.deliver(ctx, email, "Your verification code", body)
}

// SendReceipt mails the payment receipt of a confirmed booking.
func (m *Mailer) SendReceipt(ctx context.Context, email string, ev BookingConfirmedEvent) error {
    var b strings.Builder
    fmt.Fprintf(&b, "Thank you, your booking is confirmed.\r\n\r\n")
    fmt.Fprintf(&b, "Reference: %s\r\n", ev.ReferenceNumber)
    fmt.Fprintf(&b, "Rental: %s to %s\r\n", ev.StartDate, ev.EndDate)
    fmt.Fprintf(&b, "Amount paid: %.2f\r\n", ev.TotalAmount)
    fmt.Fprintf(&b, "Payment method: %s\r\n", ev.PaymentMethod)
    return m.deliver(ctx, email, "Booking receipt "+ev.ReferenceNumber, b.String())
}

func (m *Mailer) deliver(ctx context.Context, to, subject, body string) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    if m.cfg.Host == "" {
        m.log.Info("smtp disabled, mail not sent", zap.String("to", to), zap.String("subject", subject))
        return nil
    }
    msg := buildMessage(m.cfg.From, to, subject, body)
    var auth smtp.Auth
    if m.cfg.Username != "" {
        auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
    }
    addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
    if err := m.send(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
        return fmt.Errorf("smtp send: %w", err)
    }
    return nil
}

func buildMessage(from, to, subject, body string) []byte {
    var b strings.Builder
    b.WriteString("From: " + from + "\r\n")
    b.WriteString("To: " + to + "\r\n")
    b.WriteString("Subject: " + subject + "\r\n")
    b.WriteString("MIME-Version: 1.0\r\n")
    b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
    b.WriteString(body)
    return []byte(b.String())
}
