/**
 * @description
 * Domain models for the arrival credit gate: the GPS-validated, metered
 * decrement of a driver's prepaid ride allowance when the driver confirms
 * arrival at a booking's reference point.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Booking arrival statuses relevant to the credit gate.
const (
	ArrivalStatusEnRoute = "en_route"
	ArrivalStatusArrived = "arrived"
)

// DriverSubscription tracks a driver's prepaid ride credits. RidesRemaining
// never goes below zero; a decrement that would make it negative is rejected.
type DriverSubscription struct {
	DriverID       uuid.UUID `json:"driver_id"`
	RidesRemaining int       `json:"rides_remaining"`
	RidesUsed      int       `json:"rides_used"`
	MaxRidesPerDay int       `json:"max_rides_per_day"`
	IsActive       bool      `json:"is_active"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Booking is the slice of a booking record the arrival gate needs: the
// assigned driver and the reference point the driver must be within range of.
type Booking struct {
	ID            uuid.UUID  `json:"id"`
	DriverID      uuid.UUID  `json:"driver_id"`
	RiderID       uuid.UUID  `json:"rider_id"`
	DestLat       float64    `json:"dest_lat"`
	DestLng       float64    `json:"dest_lng"`
	ArrivalStatus string     `json:"arrival_status"`
	ArrivedAt     *time.Time `json:"arrived_at,omitempty"`
}

// ConfirmArrivalPayload is the DTO for a driver's arrival ping. The reading
// is treated as opaque coordinates; no smoothing or validation is applied
// beyond distance thresholding.
type ConfirmArrivalPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ArrivalConfirmation is returned after a successful arrival confirmation.
type ArrivalConfirmation struct {
	Success        bool    `json:"success"`
	RidesRemaining int     `json:"rides_remaining"`
	DistanceMeters float64 `json:"distance_meters"`
}
