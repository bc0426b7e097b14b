package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/vehicle-rental/internal/queue"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(s string) *fakeClock {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type delivery struct{ email, code string }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []delivery
	err  error
}

func (n *fakeNotifier) SendOTP(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, delivery{email, code})
	return n.err
}

func (n *fakeNotifier) last() delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.BookingConfirmedEvent
	err    error
}

func (p *fakePublisher) PublishBookingConfirmed(_ context.Context, ev queue.BookingConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

// sequence returns a generator yielding vals in order, repeating the last.
func sequence(calls *int, vals ...string) func() (string, error) {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		i := *calls
		*calls++
		if i >= len(vals) {
			i = len(vals) - 1
		}
		return vals[i], nil
	}
}

func ptr[T any](v T) *T { return &v }
