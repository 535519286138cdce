/**
 * @description
 * This file contains the escrow engine: creation of held escrows, buyer
 * delivery confirmation, and administrative overrides (force release, force
 * refund, dispute open/resolve). Every transition is delegated to a single
 * conditional repository operation, so four independent triggers — buyer,
 * admin, the timeout sweep and a second admin click — can race the same
 * record and exactly one of them commits the wallet credits.
 *
 * @dependencies
 * - context, crypto/rand, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For escrow identifiers.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Best-effort notification events.
 */

package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sokoni/settlement-service/internal/domain"
	"github.com/sokoni/settlement-service/internal/store"
	"github.com/sokoni/settlement-service/pkg/rabbitmq"
)

// EscrowService orchestrates the escrow state machine.
type EscrowService struct {
	repo              store.Repository
	events            rabbitmq.Publisher
	eventExchange     string
	platformAccountID uuid.UUID
	releaseWindow     time.Duration
	defaultPolicy     domain.SplitPolicy
}

// NewEscrowService creates a new escrow engine instance.
func NewEscrowService(
	repo store.Repository,
	events rabbitmq.Publisher,
	eventExchange string,
	platformAccountID uuid.UUID,
	releaseWindow time.Duration,
	defaultPolicy domain.SplitPolicy,
) *EscrowService {
	return &EscrowService{
		repo:              repo,
		events:            events,
		eventExchange:     eventExchange,
		platformAccountID: platformAccountID,
		releaseWindow:     releaseWindow,
		defaultPolicy:     defaultPolicy,
	}
}

// applySplitPolicy divides a total into seller, driver and platform amounts
// in integer minor units. Each share is floored; the remainder goes to the
// seller so the three amounts always sum to the total exactly. When the
// order has no driver the driver share folds into the seller amount.
func applySplitPolicy(policy domain.SplitPolicy, total int64, hasDriver bool) (seller, driver, fee int64) {
	fee = total * int64(policy.PlatformPercent) / 100
	if hasDriver {
		driver = total * int64(policy.DriverPercent) / 100
	}
	seller = total - driver - fee
	return seller, driver, fee
}

func generateConfirmationCode() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// Fall back to a uuid-derived code; the code is a convenience, not a secret key.
		return uuid.New().String()[:8]
	}
	return hex.EncodeToString(buf)
}

// CreateEscrow validates the additive invariant and records a new held
// escrow. Explicit amounts win over the split policy; in both cases
// seller + driver + fee must equal total exactly or creation fails.
func (s *EscrowService) CreateEscrow(ctx context.Context, payload domain.CreateEscrowPayload) (*domain.EscrowTransaction, error) {
	if payload.TotalAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	hasDriver := payload.DriverID != nil
	var sellerAmount, driverAmount, platformFee int64
	if payload.SellerAmount != nil && payload.PlatformFee != nil {
		sellerAmount = *payload.SellerAmount
		platformFee = *payload.PlatformFee
		if payload.DriverAmount != nil {
			driverAmount = *payload.DriverAmount
		}
	} else {
		policy := s.defaultPolicy
		if payload.SplitPolicy != nil {
			policy = *payload.SplitPolicy
		}
		sellerAmount, driverAmount, platformFee = applySplitPolicy(policy, payload.TotalAmount, hasDriver)
	}

	if sellerAmount < 0 || driverAmount < 0 || platformFee < 0 {
		return nil, ErrInvalidSplit
	}
	if sellerAmount+driverAmount+platformFee != payload.TotalAmount {
		return nil, ErrInvalidSplit
	}
	if !hasDriver && driverAmount != 0 {
		return nil, ErrInvalidSplit
	}

	now := time.Now().UTC()
	escrow := &domain.EscrowTransaction{
		ID:               uuid.New(),
		OrderID:          payload.OrderID,
		BuyerID:          payload.BuyerID,
		SellerID:         payload.SellerID,
		DriverID:         payload.DriverID,
		TotalAmount:      payload.TotalAmount,
		SellerAmount:     sellerAmount,
		DriverAmount:     driverAmount,
		PlatformFee:      platformFee,
		Currency:         payload.Currency,
		Status:           domain.EscrowStatusHeld,
		ConfirmationCode: generateConfirmationCode(),
		HeldAt:           now,
		TimeoutDate:      now.Add(s.releaseWindow),
	}

	if err := s.repo.CreateEscrow(ctx, escrow); err != nil {
		return nil, fmt.Errorf("failed to create escrow: %w", err)
	}

	log.Printf("level=info component=escrow msg=\"escrow held\" escrow_id=%s order_id=%s total=%d seller=%d driver=%d fee=%d timeout=%s",
		escrow.ID, escrow.OrderID, escrow.TotalAmount, sellerAmount, driverAmount, platformFee, escrow.TimeoutDate.Format(time.RFC3339))

	s.notify(ctx, escrow.BuyerID, "escrow.held", escrow)
	return escrow, nil
}

// GetEscrow returns a single escrow record.
func (s *EscrowService) GetEscrow(ctx context.Context, escrowID uuid.UUID) (*domain.EscrowTransaction, error) {
	return s.repo.FindEscrowByID(ctx, escrowID)
}

// ListEscrows returns escrows filtered by status for admin views.
func (s *EscrowService) ListEscrows(ctx context.Context, opts domain.EscrowListOptions) ([]domain.EscrowTransaction, error) {
	return s.repo.ListEscrows(ctx, opts)
}

// ConfirmDelivery releases a held escrow on the buyer's confirmation. The
// actor must be the escrow's buyer; a confirmation code, when supplied, must
// match the escrow's. The release itself is one conditional transaction, so
// a racing admin action or sweep leaves this call with store.ErrEscrowNotHeld
// and no wallet effect.
func (s *EscrowService) ConfirmDelivery(ctx context.Context, escrowID, actorID uuid.UUID, code string) (*domain.EscrowTransaction, error) {
	escrow, err := s.repo.FindEscrowByID(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if escrow.BuyerID != actorID {
		return nil, ErrNotAuthorized
	}
	if code != "" && code != escrow.ConfirmationCode {
		return nil, ErrBadConfirmationCode
	}

	released, err := s.repo.ReleaseEscrowAtomic(ctx, escrowID, domain.EscrowStatusHeld, "buyer", s.platformAccountID)
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=escrow msg=\"escrow released by buyer\" escrow_id=%s buyer_id=%s total=%d", released.ID, actorID, released.TotalAmount)
	s.notifyRelease(ctx, released)
	return released, nil
}

// AdminAction applies an administrative override. The operator identity is
// recorded, not authorized; the admin surface authenticates upstream.
func (s *EscrowService) AdminAction(ctx context.Context, escrowID uuid.UUID, operatorID string, payload domain.AdminEscrowActionPayload) (*domain.EscrowTransaction, error) {
	switch payload.Action {
	case domain.EscrowActionForceRelease:
		released, err := s.repo.ReleaseEscrowAtomic(ctx, escrowID, domain.EscrowStatusHeld, operatorID, s.platformAccountID)
		if err != nil {
			return nil, err
		}
		log.Printf("level=info component=escrow msg=\"escrow force-released\" escrow_id=%s operator=%s", escrowID, operatorID)
		s.notifyRelease(ctx, released)
		return released, nil

	case domain.EscrowActionForceRefund:
		refunded, err := s.repo.RefundEscrowAtomic(ctx, escrowID, domain.EscrowStatusHeld, operatorID)
		if err != nil {
			return nil, err
		}
		log.Printf("level=info component=escrow msg=\"escrow force-refunded\" escrow_id=%s operator=%s total=%d", escrowID, operatorID, refunded.TotalAmount)
		s.notify(ctx, refunded.BuyerID, "escrow.refunded", refunded)
		return refunded, nil

	case domain.EscrowActionOpenDispute:
		reason := payload.Reason
		if reason == "" {
			reason = payload.Notes
		}
		if reason == "" {
			return nil, ErrDisputeReasonRequired
		}
		operatorUUID, err := uuid.Parse(operatorID)
		if err != nil {
			operatorUUID = uuid.Nil
		}
		disputed, err := s.repo.OpenEscrowDisputeAtomic(ctx, escrowID, operatorUUID, reason)
		if err != nil {
			return nil, err
		}
		log.Printf("level=info component=escrow msg=\"escrow disputed\" escrow_id=%s operator=%s", escrowID, operatorID)
		s.notify(ctx, disputed.SellerID, "escrow.disputed", disputed)
		s.notify(ctx, disputed.BuyerID, "escrow.disputed", disputed)
		return disputed, nil

	case domain.EscrowActionResolveDispute:
		switch payload.Resolution {
		case domain.EscrowResolutionRelease:
			released, err := s.repo.ReleaseEscrowAtomic(ctx, escrowID, domain.EscrowStatusDisputed, operatorID, s.platformAccountID)
			if err != nil {
				return nil, err
			}
			log.Printf("level=info component=escrow msg=\"dispute resolved toward release\" escrow_id=%s operator=%s", escrowID, operatorID)
			s.notifyRelease(ctx, released)
			return released, nil
		case domain.EscrowResolutionRefund:
			refunded, err := s.repo.RefundEscrowAtomic(ctx, escrowID, domain.EscrowStatusDisputed, operatorID)
			if err != nil {
				return nil, err
			}
			log.Printf("level=info component=escrow msg=\"dispute resolved toward refund\" escrow_id=%s operator=%s", escrowID, operatorID)
			s.notify(ctx, refunded.BuyerID, "escrow.refunded", refunded)
			return refunded, nil
		default:
			return nil, ErrInvalidResolution
		}

	default:
		return nil, ErrInvalidAdminAction
	}
}

// notifyRelease emits the release events to every credited party.
func (s *EscrowService) notifyRelease(ctx context.Context, escrow *domain.EscrowTransaction) {
	s.notify(ctx, escrow.SellerID, "escrow.released", escrow)
	s.notify(ctx, escrow.BuyerID, "escrow.released", escrow)
	if escrow.DriverID != nil {
		s.notify(ctx, *escrow.DriverID, "escrow.released", escrow)
	}
}

// notify publishes a notification event fire-and-forget. Delivery failures
// are logged and never surfaced; the transition has already committed.
func (s *EscrowService) notify(ctx context.Context, recipientID uuid.UUID, kind string, escrow *domain.EscrowTransaction) {
	if s.events == nil {
		return
	}
	event := rabbitmq.NotificationEvent{
		RecipientID: recipientID,
		Kind:        kind,
		Payload: map[string]interface{}{
			"escrow_id":    escrow.ID.String(),
			"order_id":     escrow.OrderID.String(),
			"status":       escrow.Status,
			"total_amount": escrow.TotalAmount,
			"currency":     escrow.Currency,
		},
	}
	if err := s.events.PublishNotification(ctx, s.eventExchange, event); err != nil {
		log.Printf("level=warn component=escrow msg=\"notification publish failed\" escrow_id=%s kind=%s err=%v", escrow.ID, kind, err)
	}
}
