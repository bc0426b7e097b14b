package queue_test

import (
    "context"
    "encoding/json"
    "errors"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/stretchr/testify/require"
    "go.uber.org/zap"

    "github.com/iliyamo/vehicle-rental/internal/queue"
)

type sentMail struct {
    to, code string
    receipt  *queue.BookingConfirmedEvent
}

type fakeSender struct {
    sent []sentMail
    err  error
}

func (f *fakeSender) SendOTP(_ context.Context, email, code string) error {
    f.sent = append(f.sent, sentMail{to: email, code: code})
    return f.err
}

func (f *fakeSender) SendReceipt(_ context.Context, email string, ev queue.BookingConfirmedEvent) error {
    f.sent = append(f.sent, sentMail{to: email, receipt: &ev})
    return f.err
}

func TestHandleOTPRequested(t *testing.T) {
    s := &fakeSender{}
    c := queue.NewConsumer("", s, nil, "", zap.NewNop())

    body, _ := json.Marshal(queue.OTPRequestedEvent{Email: "ana@example.com", Code: "004217"})
    require.NoError(t, c.Handle(context.Background(), queue.OTPRequestedQueue, body))
    require.Len(t, s.sent, 1)
    require.Equal(t, "ana@example.com", s.sent[0].to)
    require.Equal(t, "004217", s.sent[0].code)

    require.Error(t, c.Handle(context.Background(), queue.OTPRequestedQueue, []byte(`{"email":""}`)))
    require.Error(t, c.Handle(context.Background(), queue.OTPRequestedQueue, []byte(`not json`)))
}

func TestHandleBookingConfirmedWritesLogAndReceipt(t *testing.T) {
    s := &fakeSender{}
    logPath := filepath.Join(t.TempDir(), "logs", "booking.log")
    lookup := func(_ context.Context, id uint64) (string, error) {
        require.Equal(t, uint64(7), id)
        return "client@example.com", nil
    }
    c := queue.NewConsumer("", s, lookup, logPath, zap.NewNop())

    ev := queue.BookingConfirmedEvent{
        BookingID:       11,
        ClientID:        7,
        VehicleID:       3,
        ReferenceNumber: "PAY-ABCDEFGHIJ",
        StartDate:       "2025-06-01",
        EndDate:         "2025-06-03",
        TotalAmount:     2100,
        PaymentMethod:   "gcash",
        ConfirmedAt:     "2025-05-30T10:00:00Z",
    }
    body, _ := json.Marshal(ev)
    require.NoError(t, c.Handle(context.Background(), queue.BookingConfirmedQueue, body))

    raw, err := os.ReadFile(logPath)
    require.NoError(t, err)
    line := string(raw)
    require.True(t, strings.HasPrefix(line, "[2025-05-30T10:00:00Z] Booking confirmed"))
    require.Contains(t, line, "reference=PAY-ABCDEFGHIJ")
    require.Contains(t, line, "total=2100.00")

    require.Len(t, s.sent, 1)
    require.Equal(t, "client@example.com", s.sent[0].to)
    require.Equal(t, ev, *s.sent[0].receipt)
}

func TestHandleBookingReceiptFailureIsNotFatal(t *testing.T) {
    s := &fakeSender{err: errors.New("relay down")}
    lookup := func(context.Context, uint64) (string, error) { return "client@example.com", nil }
    c := queue.NewConsumer("", s, lookup, "", zap.NewNop())

    body, _ := json.Marshal(queue.BookingConfirmedEvent{BookingID: 1, ClientID: 2})
    require.NoError(t, c.Handle(context.Background(), queue.BookingConfirmedQueue, body))
}

func TestHandleUnknownQueue(t *testing.T) {
    c := queue.NewConsumer("", &fakeSender{}, nil, "", zap.NewNop())
    require.Error(t, c.Handle(context.Background(), "payments.refunded", []byte(`{}`)))
}
