/**
 * @description
 * Arrival credit gate: the GPS-validated, at-most-once decrement of a
 * driver's prepaid ride allowance. The distance check happens outside the
 * transaction (it has no side effect); the credit spend and the booking's
 * arrived flag commit together, keyed on the booking still being en route,
 * so a retried or duplicated client call cannot decrement twice.
 *
 * @dependencies
 * - context, log, math, time: Standard Go libraries.
 * - github.com/google/uuid: Record identifiers.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Best-effort notification events.
 */

package app

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sokoni/settlement-service/internal/domain"
	"github.com/sokoni/settlement-service/internal/store"
	"github.com/sokoni/settlement-service/pkg/rabbitmq"
)

const earthRadiusMeters = 6371000.0

// RateLimiter is implemented by the Redis fixed-window limiter. A nil
// limiter disables rate limiting entirely.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// ArrivalService owns the GPS-gated ride-credit decrement.
type ArrivalService struct {
	repo          store.Repository
	events        rabbitmq.Publisher
	eventExchange string
	radiusMeters  float64

	limiter     RateLimiter
	pingsPerMin int
}

// NewArrivalService creates a new arrival credit gate instance.
func NewArrivalService(repo store.Repository, events rabbitmq.Publisher, eventExchange string, radiusMeters float64) *ArrivalService {
	if radiusMeters <= 0 {
		radiusMeters = 100
	}
	return &ArrivalService{
		repo:          repo,
		events:        events,
		eventExchange: eventExchange,
		radiusMeters:  radiusMeters,
	}
}

// SetRateLimiter wires the optional per-driver ping limiter.
func (s *ArrivalService) SetRateLimiter(limiter RateLimiter, pingsPerMinute int) {
	s.limiter = limiter
	s.pingsPerMin = pingsPerMinute
}

// haversineMeters computes the great-circle distance between two points.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ConfirmArrival validates the driver's position against the booking's
// reference point and, if in range, spends exactly one ride credit while
// marking the booking arrived. The GPS reading is treated as an opaque
// coordinate pair; no smoothing or validation beyond the distance threshold.
func (s *ArrivalService) ConfirmArrival(ctx context.Context, bookingID, driverID uuid.UUID, position domain.ConfirmArrivalPayload) (*domain.ArrivalConfirmation, error) {
	if s.limiter != nil && s.pingsPerMin > 0 {
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "arrival_ping", driverID.String(), s.pingsPerMin, time.Minute)
		if err != nil {
			// Limiter trouble must not block arrivals; log and continue.
			log.Printf("level=warn component=arrival msg=\"rate limiter unavailable\" driver_id=%s err=%v", driverID, err)
		} else if count > s.pingsPerMin {
			log.Printf("level=info component=arrival msg=\"ping rate limited\" driver_id=%s count=%d retry_after=%d", driverID, count, retryAfter)
			return nil, ErrRateLimited
		}
	}

	booking, err := s.repo.FindBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.DriverID != driverID {
		return nil, ErrNotAuthorized
	}

	distance := haversineMeters(position.Lat, position.Lng, booking.DestLat, booking.DestLng)
	if distance > s.radiusMeters {
		log.Printf("level=info component=arrival msg=\"arrival out of range\" booking_id=%s driver_id=%s distance_m=%.0f limit_m=%.0f",
			bookingID, driverID, distance, s.radiusMeters)
		return nil, &OutOfRangeError{DistanceMeters: distance, RadiusMeters: s.radiusMeters}
	}

	ridesRemaining, err := s.repo.ConfirmArrivalAtomic(ctx, bookingID, driverID)
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=arrival msg=\"arrival confirmed\" booking_id=%s driver_id=%s distance_m=%.0f rides_remaining=%d",
		bookingID, driverID, distance, ridesRemaining)

	if s.events != nil {
		event := rabbitmq.NotificationEvent{
			RecipientID: booking.RiderID,
			Kind:        "booking.driver_arrived",
			Payload: map[string]interface{}{
				"booking_id": bookingID.String(),
				"driver_id":  driverID.String(),
			},
		}
		if err := s.events.PublishNotification(ctx, s.eventExchange, event); err != nil {
			log.Printf("level=warn component=arrival msg=\"notification publish failed\" booking_id=%s err=%v", bookingID, err)
		}
	}

	return &domain.ArrivalConfirmation{
		Success:        true,
		RidesRemaining: ridesRemaining,
		DistanceMeters: distance,
	}, nil
}

// GetDriverSubscription exposes the driver's remaining ride credits.
func (s *ArrivalService) GetDriverSubscription(ctx context.Context, driverID uuid.UUID) (*domain.DriverSubscription, error) {
	return s.repo.GetDriverSubscription(ctx, driverID)
}
