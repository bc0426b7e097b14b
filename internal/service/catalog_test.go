package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/repository/memory"
	"github.com/iliyamo/vehicle-rental/internal/service"
)

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return c.err
}

func newCatalog(t *testing.T) (*memory.Store, *service.CatalogService, *countingInvalidator) {
	t.Helper()
	store := memory.New()
	inv := &countingInvalidator{}
	clock := newClock("2025-05-30T22:15:00Z")
	svc := service.NewCatalogService(store.Vehicles(), store.Bookings(), zap.NewNop(),
		service.WithCatalogClock(clock.Now), service.WithCacheInvalidator(inv))
	return store, svc, inv
}

func vehicle(operatorID uint64, plate string) model.Vehicle {
	return model.Vehicle{
		OperatorID: operatorID, LicensePlate: plate, ChassisNumber: "CH-" + plate,
		Brand: "Honda", Model: "City", Year: 2021, PricePerDay: 1500, IsActive: true,
	}
}

func TestListActivePagesFeaturedFirst(t *testing.T) {
	store, svc, _ := newCatalog(t)
	for i := 0; i < 15; i++ {
		v := vehicle(1, "P"+string(rune('A'+i)))
		v.IsFeatured = i == 3
		v.IsActive = i != 5
		store.Vehicles().Put(v)
	}

	page, err := svc.ListActive(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Equal(t, service.DefaultPageSize, page.PageSize)
	require.Equal(t, int64(14), page.Total)
	require.Len(t, page.Vehicles, service.DefaultPageSize)
	require.True(t, page.Vehicles[0].IsFeatured)

	page, err = svc.ListActive(context.Background(), 2, 1000)
	require.NoError(t, err)
	require.Equal(t, service.MaxPageSize, page.PageSize)
	require.Empty(t, page.Vehicles)
}

func TestGetActiveDetail(t *testing.T) {
	store, svc, _ := newCatalog(t)
	ctx := context.Background()
	v := store.Vehicles().Put(vehicle(7, "NAB-1"))

	d, err := svc.GetActive(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, "Honda City (2021)", d.DisplayName)
	require.Equal(t, model.PlaceholderImage, d.PrimaryPhoto)
	require.Nil(t, d.Location)

	require.NoError(t, store.Vehicles().AddAttachment(ctx, &model.VehicleAttachment{VehicleID: v.ID, AttachmentType: model.AttachmentOR, AttachmentURL: "/or.pdf"}))
	require.NoError(t, store.Vehicles().AddAttachment(ctx, &model.VehicleAttachment{VehicleID: v.ID, AttachmentType: model.AttachmentVehiclePhoto, AttachmentURL: "/front.jpg"}))
	require.NoError(t, store.Vehicles().AddAttachment(ctx, &model.VehicleAttachment{VehicleID: v.ID, AttachmentType: model.AttachmentVehiclePhoto, AttachmentURL: "/side.jpg"}))
	store.Vehicles().PutLocation(model.OperatorLocation{OperatorID: 7, City: "Makati", Country: "PH", IsActive: true})

	d, err = svc.GetActive(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, "/front.jpg", d.PrimaryPhoto)
	require.Len(t, d.Attachments, 3)
	require.NotNil(t, d.Location)
	require.Equal(t, "Makati", d.Location.City)
}

func TestGetActiveHidesInactiveAndMissing(t *testing.T) {
	store, svc, _ := newCatalog(t)
	v := vehicle(7, "OFF-1")
	v.IsActive = false
	v = store.Vehicles().Put(v)

	_, err := svc.GetActive(context.Background(), v.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.GetActive(context.Background(), 9999)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAvailabilityIgnoresNonBlockingBookings(t *testing.T) {
	store, svc, _ := newCatalog(t)
	ctx := context.Background()
	v := store.Vehicles().Put(vehicle(7, "AV-1"))
	put := func(status model.BookingStatus, start, end string) {
		store.Bookings().Put(model.Booking{VehicleID: v.ID, Status: status, StartDate: day(start), EndDate: day(end)})
	}
	put(model.BookingPending, "2025-06-01", "2025-06-10")
	put(model.BookingCancelled, "2025-06-01", "2025-06-10")
	put(model.BookingCompleted, "2025-06-01", "2025-06-10")
	put(model.BookingConfirmed, "2025-06-20", "2025-06-25")

	require.NoError(t, svc.EnsureAvailable(ctx, v.ID, day("2025-06-01"), day("2025-06-05")))
	require.NoError(t, svc.EnsureAvailable(ctx, v.ID, day("2025-06-15"), day("2025-06-20")))
	require.NoError(t, svc.EnsureAvailable(ctx, v.ID, day("2025-06-25"), day("2025-06-27")))

	err := svc.EnsureAvailable(ctx, v.ID, day("2025-06-19"), day("2025-06-21"))
	require.ErrorIs(t, err, apperr.ErrConflict)
	ok, err := svc.IsAvailable(ctx, v.ID, day("2025-06-24"), day("2025-06-24"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQuoteDefaults(t *testing.T) {
	store, svc, _ := newCatalog(t)
	v := store.Vehicles().Put(vehicle(7, "Q-1"))

	q, err := svc.Quote(context.Background(), v.ID, service.QuoteInput{})
	require.NoError(t, err)
	require.Equal(t, day("2025-05-31"), q.PickupDate)
	require.Equal(t, day("2025-06-01"), q.ReturnDate)
	require.Equal(t, "09:00", q.PickupTime)
	require.Equal(t, "09:00", q.ReturnTime)
	require.Equal(t, "Honda City (2021)", q.VehicleName)
	require.Equal(t, model.PlaceholderImage, q.VehicleImage)
	require.Equal(t, service.Pricing{TotalDays: 1, Subtotal: 1500, ServiceFee: 75, TotalPrice: 1575}, q.Pricing)

	q, err = svc.Quote(context.Background(), v.ID, service.QuoteInput{
		PickupDate: ptr(day("2025-07-01")), PickupTime: "14:30",
	})
	require.NoError(t, err)
	require.Equal(t, day("2025-07-02"), q.ReturnDate)
	require.Equal(t, "14:30", q.PickupTime)
}

func TestOperatorOwnsTheVehiclesTheyChange(t *testing.T) {
	_, svc, inv := newCatalog(t)
	ctx := context.Background()

	v, err := svc.CreateVehicle(ctx, 7, vehicle(0, "OWN-1"))
	require.NoError(t, err)
	require.Equal(t, uint64(7), v.OperatorID)
	require.Equal(t, 1, inv.calls)

	_, err = svc.UpdateVehicle(ctx, 8, v.ID, vehicle(0, "OWN-1"))
	require.ErrorIs(t, err, apperr.ErrUnauthorizedOwnership)
	require.ErrorIs(t, svc.DeleteVehicle(ctx, 8, v.ID), apperr.ErrUnauthorizedOwnership)
	_, err = svc.AddAttachment(ctx, 8, v.ID, model.AttachmentCR, "/cr.pdf")
	require.ErrorIs(t, err, apperr.ErrUnauthorizedOwnership)

	upd := vehicle(0, "OWN-1")
	upd.PricePerDay = 1800
	got, err := svc.UpdateVehicle(ctx, 7, v.ID, upd)
	require.NoError(t, err)
	require.Equal(t, 1800.0, got.PricePerDay)
	require.Equal(t, uint64(7), got.OperatorID)

	a, err := svc.AddAttachment(ctx, 7, v.ID, model.AttachmentInsurance, "/ins.pdf")
	require.NoError(t, err)
	require.NotZero(t, a.ID)
	_, err = svc.AddAttachment(ctx, 7, v.ID, "selfie", "/x.jpg")
	require.ErrorIs(t, err, apperr.ErrValidation)

	mine, err := svc.ListByOperator(ctx, 7)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	require.NoError(t, svc.DeleteVehicle(ctx, 7, v.ID))
	require.Equal(t, 4, inv.calls)
}

func TestCreateVehicleValidationAndDuplicates(t *testing.T) {
	_, svc, inv := newCatalog(t)
	ctx := context.Background()

	bad := vehicle(0, "DUP-1")
	bad.Brand = ""
	_, err := svc.CreateVehicle(ctx, 7, bad)
	require.ErrorIs(t, err, apperr.ErrMissingField)

	_, err = svc.CreateVehicle(ctx, 7, vehicle(0, "DUP-1"))
	require.NoError(t, err)
	_, err = svc.CreateVehicle(ctx, 8, vehicle(0, "DUP-1"))
	require.ErrorIs(t, err, apperr.ErrConflict)

	inv.err = errors.New("redis down")
	_, err = svc.CreateVehicle(ctx, 7, vehicle(0, "DUP-2"))
	require.NoError(t, err)
}

func TestDeleteVehicleWithBookingsConflicts(t *testing.T) {
	store, svc, _ := newCatalog(t)
	ctx := context.Background()
	v := store.Vehicles().Put(vehicle(7, "BK-1"))
	store.Bookings().Put(model.Booking{VehicleID: v.ID, Status: model.BookingCompleted})

	require.ErrorIs(t, svc.DeleteVehicle(ctx, 7, v.ID), apperr.ErrConflict)
}
