// Package memory is an in-process implementation of the service stores.
// It keeps the constraints of the MySQL schema that the services rely on
// (unique references, one payment per booking, one active OTP per user,
// unique plates) and runs transactions by snapshotting every table and
// restoring the snapshot when the unit of work fails. Transactions are
// serialized, which stands in for the row locks of the real database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/repository"
	"github.com/iliyamo/vehicle-rental/internal/utils"
)

type tables struct {
	users        map[uint64]model.User
	tokens       map[string]model.RefreshToken
	otps         map[uint64]model.OTP
	vehicles     map[uint64]model.Vehicle
	attachments  map[uint64]model.VehicleAttachment
	locations    map[uint64]model.OperatorLocation
	bookings     map[uint64]model.Booking
	payments     map[uint64]model.Payment
	transactions map[uint64]model.Transaction
	seq          uint64
}

func newTables() tables {
	return tables{
		users:        map[uint64]model.User{},
		tokens:       map[string]model.RefreshToken{},
		otps:         map[uint64]model.OTP{},
		vehicles:     map[uint64]model.Vehicle{},
		attachments:  map[uint64]model.VehicleAttachment{},
		locations:    map[uint64]model.OperatorLocation{},
		bookings:     map[uint64]model.Booking{},
		payments:     map[uint64]model.Payment{},
		transactions: map[uint64]model.Transaction{},
	}
}

func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.tokens {
		c.tokens[k] = v
	}
	for k, v := range t.otps {
		c.otps[k] = v
	}
	for k, v := range t.vehicles {
		c.vehicles[k] = v
	}
	for k, v := range t.attachments {
		c.attachments[k] = v
	}
	for k, v := range t.locations {
		c.locations[k] = v
	}
	for k, v := range t.bookings {
		c.bookings[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	for k, v := range t.transactions {
		c.transactions[k] = v
	}
	c.seq = t.seq
	return c
}

// Store holds every table. Use the accessor methods to get the typed stores.
type Store struct {
	mu       sync.Mutex
	data     tables
	failures map[string]error
	commits  int
}

func New() *Store {
	return &Store{data: newTables(), failures: map[string]error{}}
}

type txKey struct{ s *Store }

// WithinTx runs fn as one unit of work. Store calls made with the context
// passed to fn join the unit of work; if fn fails every change is undone.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{s}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{s}, true)); err != nil {
		s.data = snapshot
		return err
	}
	if err := s.failure("commit"); err != nil {
		s.data = snapshot
		return err
	}
	s.commits++
	return nil
}

// Commits counts successful transactions.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Fail makes every call of op return err until cleared. op is named
// "<table>.<Method>", e.g. "transactions.Create", or "commit".
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// ClearFailures removes all injected failures.
func (s *Store) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string]error{}
}

func (s *Store) failure(op string) error { return s.failures[op] }

// run executes fn with the store locked unless ctx already belongs to a
// transaction of this store, which holds the lock.
func (s *Store) run(ctx context.Context, op string, fn func(t *tables) error) error {
	if ctx.Value(txKey{s}) == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if err := s.failure(op); err != nil {
		return err
	}
	return fn(&s.data)
}

func (t *tables) nextID() uint64 {
	t.seq++
	return t.seq
}

// Users is the user and refresh token store.
type Users struct{ s *Store }

func (s *Store) Users() *Users { return &Users{s} }

// Create hashes the password like the SQL store and returns the new ID.
func (u *Users) Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	var id uint64
	err = u.s.run(ctx, "users.Create", func(t *tables) error {
		for _, x := range t.users {
			if x.Email == email {
				return repository.ErrEmailExists
			}
		}
		now := time.Now().UTC()
		id = t.nextID()
		t.users[id] = model.User{ID: id, Name: strings.TrimSpace(name), Email: email, PasswordHash: hash,
			Role: role, CreatedAt: now, UpdatedAt: now}
		return nil
	})
	return id, err
}

// Put stores a user as given, for seeding tests.
func (u *Users) Put(usr model.User) model.User {
	_ = u.s.run(context.Background(), "", func(t *tables) error {
		if usr.ID == 0 {
			usr.ID = t.nextID()
		} else if usr.ID > t.seq {
			t.seq = usr.ID
		}
		t.users[usr.ID] = usr
		return nil
	})
	return usr
}

func (u *Users) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var out model.User
	err := u.s.run(ctx, "users.GetByEmail", func(t *tables) error {
		for _, x := range t.users {
			if x.Email == email {
				out = x
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (u *Users) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var out model.User
	err := u.s.run(ctx, "users.GetByID", func(t *tables) error {
		x, ok := t.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = x
		return nil
	})
	return out, err
}

func (u *Users) LockByID(ctx context.Context, id uint64) (model.User, error) {
	var out model.User
	err := u.s.run(ctx, "users.LockByID", func(t *tables) error {
		x, ok := t.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = x
		return nil
	})
	return out, err
}

func (u *Users) MarkVerified(ctx context.Context, id uint64, at time.Time) error {
	return u.s.run(ctx, "users.MarkVerified", func(t *tables) error {
		x, ok := t.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		x.Verified, x.VerifiedAt, x.UpdatedAt = true, &at, at
		t.users[id] = x
		return nil
	})
}

func (u *Users) CompleteProfile(ctx context.Context, id uint64, name, phone string) error {
	return u.s.run(ctx, "users.CompleteProfile", func(t *tables) error {
		x, ok := t.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		x.Name, x.Phone, x.ProfileCompleted = name, phone, true
		t.users[id] = x
		return nil
	})
}

func (u *Users) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	return u.s.run(ctx, "tokens.StoreRefresh", func(t *tables) error {
		t.tokens[tokenHash] = model.RefreshToken{ID: t.nextID(), UserID: userID, TokenHash: tokenHash,
			ExpiresAt: exp, CreatedAt: time.Now().UTC()}
		return nil
	})
}

func (u *Users) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var id uint64
	err := u.s.run(ctx, "tokens.ValidateRefresh", func(t *tables) error {
		tok, ok := t.tokens[tokenHash]
		if !ok || tok.RevokedAt != nil || time.Now().UTC().After(tok.ExpiresAt) {
			return repository.ErrNotFound
		}
		id = tok.UserID
		return nil
	})
	return id, err
}

func (u *Users) RevokeByHash(ctx context.Context, tokenHash string) error {
	return u.s.run(ctx, "tokens.RevokeByHash", func(t *tables) error {
		if tok, ok := t.tokens[tokenHash]; ok && tok.RevokedAt == nil {
			now := time.Now().UTC()
			tok.RevokedAt = &now
			t.tokens[tokenHash] = tok
		}
		return nil
	})
}

func (u *Users) RevokeAllForUser(ctx context.Context, userID uint64) error {
	return u.s.run(ctx, "tokens.RevokeAllForUser", func(t *tables) error {
		now := time.Now().UTC()
		for h, tok := range t.tokens {
			if tok.UserID == userID && tok.RevokedAt == nil {
				tok.RevokedAt = &now
				t.tokens[h] = tok
			}
		}
		return nil
	})
}

// OTPs is the passcode store.
type OTPs struct{ s *Store }

func (s *Store) OTPs() *OTPs { return &OTPs{s} }

func (o *OTPs) ExpireActive(ctx context.Context, userID uint64) (int64, error) {
	return o.moveActive(ctx, "otps.ExpireActive", userID, model.OTPExpired)
}

func (o *OTPs) CancelActive(ctx context.Context, userID uint64) (int64, error) {
	return o.moveActive(ctx, "otps.CancelActive", userID, model.OTPCancelled)
}

func (o *OTPs) moveActive(ctx context.Context, op string, userID uint64, to model.OTPStatus) (int64, error) {
	var n int64
	err := o.s.run(ctx, op, func(t *tables) error {
		for id, x := range t.otps {
			if x.UserID == userID && x.Status == model.OTPActive {
				x.Status, x.UpdatedAt = to, time.Now().UTC()
				t.otps[id] = x
				n++
			}
		}
		return nil
	})
	return n, err
}

func (o *OTPs) Create(ctx context.Context, otp *model.OTP) error {
	return o.s.run(ctx, "otps.Create", func(t *tables) error {
		if otp.Status == model.OTPActive {
			for _, x := range t.otps {
				if x.UserID == otp.UserID && x.Status == model.OTPActive {
					return repository.ErrDuplicate
				}
			}
		}
		otp.ID = t.nextID()
		otp.UpdatedAt = otp.CreatedAt
		t.otps[otp.ID] = *otp
		return nil
	})
}

// Put stores a passcode as given, for seeding tests.
func (o *OTPs) Put(otp model.OTP) model.OTP {
	_ = o.s.run(context.Background(), "", func(t *tables) error {
		otp.ID = t.nextID()
		t.otps[otp.ID] = otp
		return nil
	})
	return otp
}

func (o *OTPs) FindActive(ctx context.Context, userID uint64, code string) (model.OTP, error) {
	var out model.OTP
	err := o.s.run(ctx, "otps.FindActive", func(t *tables) error {
		for _, x := range t.otps {
			if x.UserID == userID && x.Code == code && x.Status == model.OTPActive && x.ID > out.ID {
				out = x
			}
		}
		if out.ID == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (o *OTPs) LatestActive(ctx context.Context, userID uint64) (model.OTP, error) {
	var out model.OTP
	err := o.s.run(ctx, "otps.LatestActive", func(t *tables) error {
		for _, x := range t.otps {
			if x.UserID == userID && x.Status == model.OTPActive && x.ID > out.ID {
				out = x
			}
		}
		if out.ID == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (o *OTPs) SetStatus(ctx context.Context, id uint64, status model.OTPStatus) error {
	return o.s.run(ctx, "otps.SetStatus", func(t *tables) error {
		x, ok := t.otps[id]
		if !ok || x.Status != model.OTPActive {
			return repository.ErrNotFound
		}
		x.Status, x.UpdatedAt = status, time.Now().UTC()
		t.otps[id] = x
		return nil
	})
}

func (o *OTPs) LatestCreatedAt(ctx context.Context, userID uint64) (time.Time, error) {
	var latest time.Time
	err := o.s.run(ctx, "otps.LatestCreatedAt", func(t *tables) error {
		for _, x := range t.otps {
			if x.UserID == userID && x.CreatedAt.After(latest) {
				latest = x.CreatedAt
			}
		}
		if latest.IsZero() {
			return repository.ErrNotFound
		}
		return nil
	})
	return latest, err
}

// ForUser lists every code of the user ordered by ID.
func (o *OTPs) ForUser(userID uint64) []model.OTP {
	var out []model.OTP
	_ = o.s.run(context.Background(), "", func(t *tables) error {
		for _, x := range t.otps {
			if x.UserID == userID {
				out = append(out, x)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
