package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/repository"
)

// Vehicles is the vehicle, attachment and location store.
type Vehicles struct{ s *Store }

func (s *Store) Vehicles() *Vehicles { return &Vehicles{s} }

func (v *Vehicles) GetByID(ctx context.Context, id uint64) (model.Vehicle, error) {
	return v.get(ctx, "vehicles.GetByID", id)
}

func (v *Vehicles) LockByID(ctx context.Context, id uint64) (model.Vehicle, error) {
	return v.get(ctx, "vehicles.LockByID", id)
}

func (v *Vehicles) get(ctx context.Context, op string, id uint64) (model.Vehicle, error) {
	var out model.Vehicle
	err := v.s.run(ctx, op, func(t *tables) error {
		x, ok := t.vehicles[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = x
		return nil
	})
	return out, err
}

func (v *Vehicles) ListActive(ctx context.Context, q repository.VehicleListQuery) ([]model.Vehicle, int64, error) {
	var (
		out   []model.Vehicle
		total int64
	)
	err := v.s.run(ctx, "vehicles.ListActive", func(t *tables) error {
		var all []model.Vehicle
		for _, x := range t.vehicles {
			if x.IsActive {
				all = append(all, x)
			}
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].IsFeatured != all[j].IsFeatured {
				return all[i].IsFeatured
			}
			return all[i].ID > all[j].ID
		})
		total = int64(len(all))
		from := (q.Page - 1) * q.PageSize
		if from > len(all) {
			from = len(all)
		}
		to := from + q.PageSize
		if to > len(all) {
			to = len(all)
		}
		out = append([]model.Vehicle{}, all[from:to]...)
		return nil
	})
	return out, total, err
}

func (v *Vehicles) ListByOperator(ctx context.Context, operatorID uint64) ([]model.Vehicle, error) {
	out := []model.Vehicle{}
	err := v.s.run(ctx, "vehicles.ListByOperator", func(t *tables) error {
		for _, x := range t.vehicles {
			if x.OperatorID == operatorID {
				out = append(out, x)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func uniquePlate(t *tables, v *model.Vehicle) error {
	for _, x := range t.vehicles {
		if x.ID != v.ID && (x.LicensePlate == v.LicensePlate || x.ChassisNumber == v.ChassisNumber) {
			return repository.ErrDuplicate
		}
	}
	return nil
}

func (v *Vehicles) Create(ctx context.Context, veh *model.Vehicle) error {
	return v.s.run(ctx, "vehicles.Create", func(t *tables) error {
		if err := uniquePlate(t, veh); err != nil {
			return err
		}
		now := time.Now().UTC()
		veh.ID = t.nextID()
		veh.CreatedAt, veh.UpdatedAt = now, now
		if veh.Features == nil {
			veh.Features = []string{}
		}
		t.vehicles[veh.ID] = *veh
		return nil
	})
}

// Put stores a vehicle as given, for seeding tests.
func (v *Vehicles) Put(veh model.Vehicle) model.Vehicle {
	_ = v.s.run(context.Background(), "", func(t *tables) error {
		veh.ID = t.nextID()
		t.vehicles[veh.ID] = veh
		return nil
	})
	return veh
}

func (v *Vehicles) Update(ctx context.Context, veh *model.Vehicle) error {
	return v.s.run(ctx, "vehicles.Update", func(t *tables) error {
		if _, ok := t.vehicles[veh.ID]; !ok {
			return repository.ErrNotFound
		}
		if err := uniquePlate(t, veh); err != nil {
			return err
		}
		veh.UpdatedAt = time.Now().UTC()
		t.vehicles[veh.ID] = *veh
		return nil
	})
}

func (v *Vehicles) Delete(ctx context.Context, id uint64) error {
	return v.s.run(ctx, "vehicles.Delete", func(t *tables) error {
		if _, ok := t.vehicles[id]; !ok {
			return repository.ErrNotFound
		}
		for _, b := range t.bookings {
			if b.VehicleID == id {
				return repository.ErrConflict
			}
		}
		delete(t.vehicles, id)
		for aid, a := range t.attachments {
			if a.VehicleID == id {
				delete(t.attachments, aid)
			}
		}
		return nil
	})
}

func (v *Vehicles) ListAttachments(ctx context.Context, vehicleID uint64) ([]model.VehicleAttachment, error) {
	out := []model.VehicleAttachment{}
	err := v.s.run(ctx, "vehicles.ListAttachments", func(t *tables) error {
		for _, a := range t.attachments {
			if a.VehicleID == vehicleID {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (v *Vehicles) AddAttachment(ctx context.Context, a *model.VehicleAttachment) error {
	return v.s.run(ctx, "vehicles.AddAttachment", func(t *tables) error {
		if _, ok := t.vehicles[a.VehicleID]; !ok {
			return repository.ErrNotFound
		}
		a.ID = t.nextID()
		a.CreatedAt = time.Now().UTC()
		t.attachments[a.ID] = *a
		return nil
	})
}

func (v *Vehicles) ActiveLocation(ctx context.Context, operatorID uint64) (model.OperatorLocation, error) {
	var out model.OperatorLocation
	err := v.s.run(ctx, "vehicles.ActiveLocation", func(t *tables) error {
		for _, l := range t.locations {
			if l.OperatorID == operatorID && l.IsActive && l.ID > out.ID {
				out = l
			}
		}
		if out.ID == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
	return out, err
}

// PutLocation stores an operator location, for seeding tests.
func (v *Vehicles) PutLocation(l model.OperatorLocation) model.OperatorLocation {
	_ = v.s.run(context.Background(), "", func(t *tables) error {
		l.ID = t.nextID()
		t.locations[l.ID] = l
		return nil
	})
	return l
}

// Bookings is the booking store.
type Bookings struct{ s *Store }

func (s *Store) Bookings() *Bookings { return &Bookings{s} }

func (b *Bookings) Create(ctx context.Context, bk *model.Booking) error {
	return b.s.run(ctx, "bookings.Create", func(t *tables) error {
		if _, ok := t.vehicles[bk.VehicleID]; !ok {
			return repository.ErrConflict
		}
		now := time.Now().UTC()
		bk.ID = t.nextID()
		bk.CreatedAt, bk.UpdatedAt = now, now
		row := *bk
		row.Payment = nil
		t.bookings[bk.ID] = row
		return nil
	})
}

// Put stores a booking as given, for seeding tests.
func (b *Bookings) Put(bk model.Booking) model.Booking {
	_ = b.s.run(context.Background(), "", func(t *tables) error {
		bk.ID = t.nextID()
		t.bookings[bk.ID] = bk
		return nil
	})
	return bk
}

func (b *Bookings) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	var out model.Booking
	err := b.s.run(ctx, "bookings.GetByID", func(t *tables) error {
		x, ok := t.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = x
		return nil
	})
	return out, err
}

func (b *Bookings) ListByClient(ctx context.Context, clientID uint64) ([]model.Booking, error) {
	out := []model.Booking{}
	err := b.s.run(ctx, "bookings.ListByClient", func(t *tables) error {
		for _, x := range t.bookings {
			if x.ClientID == clientID {
				out = append(out, x)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (b *Bookings) SetStatus(ctx context.Context, id uint64, status model.BookingStatus) error {
	return b.s.run(ctx, "bookings.SetStatus", func(t *tables) error {
		x, ok := t.bookings[id]
		if !ok {
			return repository.ErrNotFound
		}
		x.Status, x.UpdatedAt = status, time.Now().UTC()
		t.bookings[id] = x
		return nil
	})
}

func (b *Bookings) HasBlockingOverlap(ctx context.Context, vehicleID uint64, start, end time.Time, excludeID uint64) (bool, error) {
	var clash bool
	err := b.s.run(ctx, "bookings.HasBlockingOverlap", func(t *tables) error {
		for _, x := range t.bookings {
			if x.VehicleID == vehicleID && x.ID != excludeID && x.Status.Blocking() && x.Overlaps(start, end) {
				clash = true
			}
		}
		return nil
	})
	return clash, err
}

// All lists every booking ordered by ID.
func (b *Bookings) All() []model.Booking {
	var out []model.Booking
	_ = b.s.run(context.Background(), "", func(t *tables) error {
		for _, x := range t.bookings {
			out = append(out, x)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Payments is the payment store.
type Payments struct{ s *Store }

func (s *Store) Payments() *Payments { return &Payments{s} }

func (p *Payments) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var found bool
	err := p.s.run(ctx, "payments.ReferenceExists", func(t *tables) error {
		for _, x := range t.payments {
			if x.ReferenceNumber == ref {
				found = true
			}
		}
		return nil
	})
	return found, err
}

func (p *Payments) Create(ctx context.Context, pay *model.Payment) error {
	return p.s.run(ctx, "payments.Create", func(t *tables) error {
		if _, ok := t.bookings[pay.BookingID]; !ok {
			return repository.ErrConflict
		}
		for _, x := range t.payments {
			if x.ReferenceNumber == pay.ReferenceNumber || x.BookingID == pay.BookingID {
				return repository.ErrDuplicate
			}
		}
		now := time.Now().UTC()
		pay.ID = t.nextID()
		pay.CreatedAt, pay.UpdatedAt = now, now
		t.payments[pay.ID] = *pay
		return nil
	})
}

// Put stores a payment as given, for seeding tests.
func (p *Payments) Put(pay model.Payment) model.Payment {
	_ = p.s.run(context.Background(), "", func(t *tables) error {
		pay.ID = t.nextID()
		t.payments[pay.ID] = pay
		return nil
	})
	return pay
}

func (p *Payments) GetByBookingID(ctx context.Context, bookingID uint64) (model.Payment, error) {
	var out model.Payment
	err := p.s.run(ctx, "payments.GetByBookingID", func(t *tables) error {
		for _, x := range t.payments {
			if x.BookingID == bookingID {
				out = x
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (p *Payments) MarkCompleted(ctx context.Context, id uint64, d model.PaymentDetails, at time.Time) error {
	return p.s.run(ctx, "payments.MarkCompleted", func(t *tables) error {
		x, ok := t.payments[id]
		if !ok || x.Status == model.PaymentCompleted {
			return repository.ErrNotFound
		}
		x.Status, x.Method, x.PaidAt, x.UpdatedAt = model.PaymentCompleted, d.Method, &at, at
		x.CardLastFour, x.CardBrand = d.CardLastFour, d.CardBrand
		x.EWalletNumber, x.EWalletEmail = d.EWalletNumber, d.EWalletEmail
		t.payments[id] = x
		return nil
	})
}

func (p *Payments) MarkFailed(ctx context.Context, id uint64, reason string, at time.Time) error {
	return p.s.run(ctx, "payments.MarkFailed", func(t *tables) error {
		x, ok := t.payments[id]
		if !ok || x.Status == model.PaymentCompleted {
			return repository.ErrNotFound
		}
		x.Status, x.FailedAt, x.FailureReason, x.UpdatedAt = model.PaymentFailed, &at, reason, at
		t.payments[id] = x
		return nil
	})
}

// All lists every payment ordered by ID.
func (p *Payments) All() []model.Payment {
	var out []model.Payment
	_ = p.s.run(context.Background(), "", func(t *tables) error {
		for _, x := range t.payments {
			out = append(out, x)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Transactions is the ledger store.
type Transactions struct{ s *Store }

func (s *Store) Transactions() *Transactions { return &Transactions{s} }

func (tr *Transactions) Create(ctx context.Context, x *model.Transaction) error {
	return tr.s.run(ctx, "transactions.Create", func(t *tables) error {
		if _, ok := t.payments[x.PaymentID]; !ok {
			return repository.ErrConflict
		}
		x.ID = t.nextID()
		x.CreatedAt = time.Now().UTC()
		t.transactions[x.ID] = *x
		return nil
	})
}

func (tr *Transactions) CompletePending(ctx context.Context, paymentID uint64, at time.Time) (int64, error) {
	var n int64
	err := tr.s.run(ctx, "transactions.CompletePending", func(t *tables) error {
		for id, x := range t.transactions {
			if x.PaymentID == paymentID && x.Status == model.TransactionPending {
				x.Status, x.CompletedAt = model.TransactionCompleted, &at
				t.transactions[id] = x
				n++
			}
		}
		return nil
	})
	return n, err
}

func (tr *Transactions) ListByPayment(ctx context.Context, paymentID uint64) ([]model.Transaction, error) {
	out := []model.Transaction{}
	err := tr.s.run(ctx, "transactions.ListByPayment", func(t *tables) error {
		for _, x := range t.transactions {
			if x.PaymentID == paymentID {
				out = append(out, x)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// All lists every ledger entry ordered by ID.
func (tr *Transactions) All() []model.Transaction {
	var out []model.Transaction
	_ = tr.s.run(context.Background(), "", func(t *tables) error {
		for _, x := range t.transactions {
			out = append(out, x)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
