package app

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sokoni/settlement-service/internal/domain"
	"github.com/sokoni/settlement-service/internal/store"
)

type arrivalRepoStub struct {
	store.Repository

	booking      *domain.Booking
	subscription *domain.DriverSubscription

	confirmErr       error
	confirmCalls     int
	remainingCredits int
}

func (s *arrivalRepoStub) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	if s.booking == nil {
		return nil, store.ErrBookingNotFound
	}
	return s.booking, nil
}

func (s *arrivalRepoStub) GetDriverSubscription(ctx context.Context, driverID uuid.UUID) (*domain.DriverSubscription, error) {
	if s.subscription == nil {
		return nil, store.ErrSubscriptionNotFound
	}
	return s.subscription, nil
}

func (s *arrivalRepoStub) ConfirmArrivalAtomic(ctx context.Context, bookingID, driverID uuid.UUID) (int, error) {
	s.confirmCalls++
	if s.confirmErr != nil {
		return 0, s.confirmErr
	}
	return s.remainingCredits, nil
}

type stubRateLimiter struct {
	count int
	err   error
	calls int
}

func (l *stubRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	l.calls++
	return l.count, 30, l.err
}

func enRouteBooking(driverID uuid.UUID) *domain.Booking {
	return &domain.Booking{
		ID:            uuid.New(),
		DriverID:      driverID,
		RiderID:       uuid.New(),
		DestLat:       6.5244,
		DestLng:       3.3792,
		ArrivalStatus: domain.ArrivalStatusEnRoute,
	}
}

func TestHaversineMeters(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64
		tolerance              float64
	}{
		{
			name: "identical points",
			lat1: 6.5244, lng1: 3.3792, lat2: 6.5244, lng2: 3.3792,
			want: 0, tolerance: 0.001,
		},
		{
			name: "one millidegree of latitude is about 111 meters",
			lat1: 0, lng1: 0, lat2: 0.001, lng2: 0,
			want: 111.195, tolerance: 0.5,
		},
		{
			name: "lagos island to mainland",
			lat1: 6.4541, lng1: 3.3947, lat2: 6.5244, lng2: 3.3792,
			want: 7999, tolerance: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := haversineMeters(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Fatalf("expected about %.1fm, got %.1fm", tt.want, got)
			}
		})
	}
}

func TestConfirmArrival_InRangeSpendsOneCredit(t *testing.T) {
	driverID := uuid.New()
	repo := &arrivalRepoStub{
		booking:          enRouteBooking(driverID),
		remainingCredits: 7,
	}
	svc := NewArrivalService(repo, nil, "", 100)

	// About 55m north of the reference point.
	confirmation, err := svc.ConfirmArrival(context.Background(), repo.booking.ID, driverID, domain.ConfirmArrivalPayload{
		Lat: repo.booking.DestLat + 0.0005,
		Lng: repo.booking.DestLng,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.confirmCalls != 1 {
		t.Fatalf("expected one credit decrement, got %d", repo.confirmCalls)
	}
	if !confirmation.Success || confirmation.RidesRemaining != 7 {
		t.Fatalf("unexpected confirmation %+v", confirmation)
	}
	if confirmation.DistanceMeters <= 0 || confirmation.DistanceMeters > 100 {
		t.Fatalf("expected an in-range distance, got %.1fm", confirmation.DistanceMeters)
	}
}

func TestConfirmArrival_OutOfRangeSpendsNothing(t *testing.T) {
	driverID := uuid.New()
	repo := &arrivalRepoStub{booking: enRouteBooking(driverID)}
	svc := NewArrivalService(repo, nil, "", 100)

	// About 150m north of the reference point.
	_, err := svc.ConfirmArrival(context.Background(), repo.booking.ID, driverID, domain.ConfirmArrivalPayload{
		Lat: repo.booking.DestLat + 0.00135,
		Lng: repo.booking.DestLng,
	})

	var outOfRange *OutOfRangeError
	if !errors.As(err, &outOfRange) {
		t.Fatalf("expected OutOfRangeError, got %v", err)
	}
	if outOfRange.DistanceMeters <= 100 {
		t.Fatalf("expected a distance above the radius, got %.1fm", outOfRange.DistanceMeters)
	}
	if repo.confirmCalls != 0 {
		t.Fatal("expected no credit decrement outside the geofence")
	}
}

func TestConfirmArrival_RequiresTheAssignedDriver(t *testing.T) {
	repo := &arrivalRepoStub{booking: enRouteBooking(uuid.New())}
	svc := NewArrivalService(repo, nil, "", 100)

	_, err := svc.ConfirmArrival(context.Background(), repo.booking.ID, uuid.New(), domain.ConfirmArrivalPayload{
		Lat: repo.booking.DestLat,
		Lng: repo.booking.DestLng,
	})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if repo.confirmCalls != 0 {
		t.Fatal("expected no credit decrement for an unassigned driver")
	}
}

func TestConfirmArrival_RepeatedPingDoesNotSpendTwice(t *testing.T) {
	driverID := uuid.New()
	repo := &arrivalRepoStub{
		booking:    enRouteBooking(driverID),
		confirmErr: store.ErrArrivalConfirmed,
	}
	svc := NewArrivalService(repo, nil, "", 100)

	_, err := svc.ConfirmArrival(context.Background(), repo.booking.ID, driverID, domain.ConfirmArrivalPayload{
		Lat: repo.booking.DestLat,
		Lng: repo.booking.DestLng,
	})
	if !errors.Is(err, store.ErrArrivalConfirmed) {
		t.Fatalf("expected store.ErrArrivalConfirmed, got %v", err)
	}
}

func TestConfirmArrival_NoCreditsLeavesBookingUntouched(t *testing.T) {
	driverID := uuid.New()
	repo := &arrivalRepoStub{
		booking:    enRouteBooking(driverID),
		confirmErr: store.ErrNoRideCredits,
	}
	svc := NewArrivalService(repo, nil, "", 100)

	_, err := svc.ConfirmArrival(context.Background(), repo.booking.ID, driverID, domain.ConfirmArrivalPayload{
		Lat: repo.booking.DestLat,
		Lng: repo.booking.DestLng,
	})
	if !errors.Is(err, store.ErrNoRideCredits) {
		t.Fatalf("expected store.ErrNoRideCredits, got %v", err)
	}
}

func TestConfirmArrival_RateLimitBlocksBeforeTheRepo(t *testing.T) {
	driverID := uuid.New()
	repo := &arrivalRepoStub{booking: enRouteBooking(driverID)}
	limiter := &stubRateLimiter{count: 31}

	svc := NewArrivalService(repo, nil, "", 100)
	svc.SetRateLimiter(limiter, 30)

	_, err := svc.ConfirmArrival(context.Background(), repo.booking.ID, driverID, domain.ConfirmArrivalPayload{
		Lat: repo.booking.DestLat,
		Lng: repo.booking.DestLng,
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if limiter.calls != 1 {
		t.Fatalf("expected one limiter call, got %d", limiter.calls)
	}
	if repo.confirmCalls != 0 {
		t.Fatal("expected no credit decrement while rate limited")
	}
}

func TestConfirmArrival_LimiterOutageDoesNotBlock(t *testing.T) {
	driverID := uuid.New()
	repo := &arrivalRepoStub{
		booking:          enRouteBooking(driverID),
		remainingCredits: 3,
	}
	limiter := &stubRateLimiter{err: errors.New("redis unavailable")}

	svc := NewArrivalService(repo, nil, "", 100)
	svc.SetRateLimiter(limiter, 30)

	confirmation, err := svc.ConfirmArrival(context.Background(), repo.booking.ID, driverID, domain.ConfirmArrivalPayload{
		Lat: repo.booking.DestLat,
		Lng: repo.booking.DestLng,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmation.RidesRemaining != 3 {
		t.Fatalf("expected 3 rides remaining, got %d", confirmation.RidesRemaining)
	}
}
