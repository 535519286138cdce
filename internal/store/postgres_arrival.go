/**
 * @description
 * Arrival credit gate queries. The booking row is the idempotency anchor:
 * the gate locks it, rejects a second confirmation for the same booking, and
 * decrements the driver's ride credits through a conditional update that can
 * never take rides_remaining below zero. All of it commits as one unit.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sokoni/settlement-service/internal/domain"
)

func (r *PostgresRepository) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.QueryRow(ctx, `
		SELECT id, driver_id, rider_id, dest_lat, dest_lng, arrival_status, arrived_at
		FROM bookings
		WHERE id = $1
	`, bookingID).Scan(&b.ID, &b.DriverID, &b.RiderID, &b.DestLat, &b.DestLng, &b.ArrivalStatus, &b.ArrivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *PostgresRepository) GetDriverSubscription(ctx context.Context, driverID uuid.UUID) (*domain.DriverSubscription, error) {
	var sub domain.DriverSubscription
	err := r.db.QueryRow(ctx, `
		SELECT driver_id, rides_remaining, rides_used, max_rides_per_day, is_active, updated_at
		FROM driver_subscriptions
		WHERE driver_id = $1
	`, driverID).Scan(&sub.DriverID, &sub.RidesRemaining, &sub.RidesUsed, &sub.MaxRidesPerDay, &sub.IsActive, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// ConfirmArrivalAtomic marks the booking arrived and spends one ride credit
// in a single transaction. The booking row lock orders concurrent retries;
// the credit decrement is conditional on rides_remaining > 0 so the counter
// is rejected at zero, never clamped.
func (r *PostgresRepository) ConfirmArrivalAtomic(ctx context.Context, bookingID, driverID uuid.UUID) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var arrivalStatus string
	err = tx.QueryRow(ctx, `
		SELECT arrival_status FROM bookings
		WHERE id = $1 AND driver_id = $2
		FOR UPDATE
	`, bookingID, driverID).Scan(&arrivalStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBookingNotFound
		}
		return 0, err
	}
	if arrivalStatus == domain.ArrivalStatusArrived {
		return 0, ErrArrivalConfirmed
	}

	var ridesRemaining int
	err = tx.QueryRow(ctx, `
		UPDATE driver_subscriptions
		SET rides_remaining = rides_remaining - 1, rides_used = rides_used + 1, updated_at = NOW()
		WHERE driver_id = $1 AND is_active AND rides_remaining > 0
		RETURNING rides_remaining
	`, driverID).Scan(&ridesRemaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, r.classifyCreditConflict(ctx, tx, driverID)
		}
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET arrival_status = 'arrived', arrived_at = NOW()
		WHERE id = $1 AND arrival_status = 'en_route'
	`, bookingID)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		// Unreachable while the booking row lock is held.
		return 0, ErrArrivalConfirmed
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return ridesRemaining, nil
}

func (r *PostgresRepository) classifyCreditConflict(ctx context.Context, tx pgx.Tx, driverID uuid.UUID) error {
	var isActive bool
	err := tx.QueryRow(ctx, `SELECT is_active FROM driver_subscriptions WHERE driver_id = $1`, driverID).Scan(&isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSubscriptionNotFound
		}
		return err
	}
	if !isActive {
		return ErrSubscriptionInactive
	}
	return ErrNoRideCredits
}
