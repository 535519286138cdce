package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sokoni/settlement-service/internal/domain"
	"github.com/sokoni/settlement-service/internal/store"
)

type sweepRepoStub struct {
	store.Repository

	candidates []domain.EscrowTransaction
	listErr    error
	listLimit  int

	releaseErrByID map[uuid.UUID]error
	releaseCalls   int
	releasedBy     string
}

func (s *sweepRepoStub) FindReleasableEscrows(ctx context.Context, now time.Time, limit int) ([]domain.EscrowTransaction, error) {
	s.listLimit = limit
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.candidates, nil
}

func (s *sweepRepoStub) ReleaseEscrowAtomic(ctx context.Context, escrowID uuid.UUID, expectFrom, resolvedBy string, platformAccountID uuid.UUID) (*domain.EscrowTransaction, error) {
	s.releaseCalls++
	s.releasedBy = resolvedBy
	if err, ok := s.releaseErrByID[escrowID]; ok && err != nil {
		return nil, err
	}
	for i := range s.candidates {
		if s.candidates[i].ID == escrowID {
			released := s.candidates[i]
			released.Status = domain.EscrowStatusReleased
			return &released, nil
		}
	}
	return nil, store.ErrEscrowNotFound
}

func sweepCandidate() domain.EscrowTransaction {
	return domain.EscrowTransaction{
		ID:          uuid.New(),
		BuyerID:     uuid.New(),
		SellerID:    uuid.New(),
		TotalAmount: 50000,
		Status:      domain.EscrowStatusHeld,
	}
}

func TestSweepTimeouts_CountsEveryOutcome(t *testing.T) {
	wins := sweepCandidate()
	raceLost := sweepCandidate()
	broken := sweepCandidate()

	repo := &sweepRepoStub{
		candidates: []domain.EscrowTransaction{wins, raceLost, broken},
		releaseErrByID: map[uuid.UUID]error{
			raceLost.ID: store.ErrEscrowClosed,
			broken.ID:   errors.New("connection reset"),
		},
	}
	svc := newEscrowTestService(repo)

	result, err := svc.SweepTimeouts(context.Background(), time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Scanned != 3 {
		t.Fatalf("expected 3 scanned, got %d", result.Scanned)
	}
	if result.Released != 1 {
		t.Fatalf("expected 1 released, got %d", result.Released)
	}
	if result.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %d", result.Skipped)
	}
	if result.Failed != 1 {
		t.Fatalf("expected 1 failed, got %d", result.Failed)
	}
	if repo.releaseCalls != 3 {
		t.Fatalf("expected 3 release attempts, got %d", repo.releaseCalls)
	}
	if repo.releasedBy != AutoReleaseActor {
		t.Fatalf("expected the sweep to release as %q, got %q", AutoReleaseActor, repo.releasedBy)
	}
}

func TestSweepTimeouts_ClampsTheLimit(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{name: "zero falls back to the default", limit: 0, wantLimit: defaultSweepLimit},
		{name: "negative falls back to the default", limit: -5, wantLimit: defaultSweepLimit},
		{name: "oversized is capped", limit: 10000, wantLimit: maxSweepLimit},
		{name: "in-range passes through", limit: 42, wantLimit: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &sweepRepoStub{}
			svc := newEscrowTestService(repo)

			if _, err := svc.SweepTimeouts(context.Background(), time.Now().UTC(), tt.limit); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if repo.listLimit != tt.wantLimit {
				t.Fatalf("expected limit %d, got %d", tt.wantLimit, repo.listLimit)
			}
		})
	}
}

func TestSweepTimeouts_ListFailureIsHard(t *testing.T) {
	repo := &sweepRepoStub{listErr: errors.New("connection refused")}
	svc := newEscrowTestService(repo)

	if _, err := svc.SweepTimeouts(context.Background(), time.Now().UTC(), 10); err == nil {
		t.Fatal("expected the sweep to fail when candidates cannot be listed")
	}
}
