/**
 * @description
 * Timeout auto-release sweep for the escrow engine. The sweep selects held
 * escrows whose release window elapsed and pushes each one through the same
 * conditional release used by buyer confirmation, so a sweep racing a manual
 * confirmation or admin action cannot double-credit. The sweep is idempotent
 * and safe to run on any schedule, including overlapping runs.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sokoni/settlement-service/internal/domain"
	"github.com/sokoni/settlement-service/internal/store"
)

const (
	defaultSweepLimit = 100
	maxSweepLimit     = 500

	// AutoReleaseActor is recorded as resolved_by on sweep-released escrows.
	AutoReleaseActor = "auto_release"
)

// SweepTimeouts releases every held escrow whose timeout date is at or
// before now. Per-record failures are counted and logged; the sweep keeps
// going. Only the candidate listing itself is a hard failure.
func (s *EscrowService) SweepTimeouts(ctx context.Context, now time.Time, limit int) (*domain.EscrowSweepResult, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if limit > maxSweepLimit {
		limit = maxSweepLimit
	}

	candidates, err := s.repo.FindReleasableEscrows(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list releasable escrows: %w", err)
	}

	result := &domain.EscrowSweepResult{Scanned: len(candidates)}
	for _, candidate := range candidates {
		released, err := s.repo.ReleaseEscrowAtomic(ctx, candidate.ID, domain.EscrowStatusHeld, AutoReleaseActor, s.platformAccountID)
		if err != nil {
			// A concurrent confirmation, admin action or overlapping sweep
			// won the record. No financial harm occurred.
			if errors.Is(err, store.ErrEscrowNotHeld) || errors.Is(err, store.ErrEscrowClosed) || errors.Is(err, store.ErrEscrowNotFound) {
				result.Skipped++
				log.Printf("level=info component=escrow flow=timeout_sweep msg=\"candidate already transitioned\" escrow_id=%s err=%v", candidate.ID, err)
				continue
			}
			result.Failed++
			log.Printf("level=error component=escrow flow=timeout_sweep msg=\"auto-release failed\" escrow_id=%s err=%v", candidate.ID, err)
			continue
		}

		result.Released++
		log.Printf("level=info component=escrow flow=timeout_sweep msg=\"escrow auto-released\" escrow_id=%s total=%d", released.ID, released.TotalAmount)
		s.notifyRelease(ctx, released)
	}

	if result.Scanned > 0 {
		log.Printf("level=info component=escrow flow=timeout_sweep msg=\"sweep complete\" scanned=%d released=%d skipped=%d failed=%d",
			result.Scanned, result.Released, result.Skipped, result.Failed)
	}
	return result, nil
}

// RunSweeper blocks, running SweepTimeouts on the given interval until the
// context is cancelled. Intended to be launched from main as a goroutine.
func (s *EscrowService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("level=info component=escrow flow=timeout_sweep msg=\"sweeper started\" interval=%s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("level=info component=escrow flow=timeout_sweep msg=\"sweeper stopped\"")
			return
		case <-ticker.C:
			if _, err := s.SweepTimeouts(ctx, time.Now().UTC(), defaultSweepLimit); err != nil {
				log.Printf("level=error component=escrow flow=timeout_sweep msg=\"sweep run failed\" err=%v", err)
			}
		}
	}
}
