/**
 * @description
 * Withdrawal settlement engine. The payout itself is irreversible and
 * happens outside the system (a manual mobile-money transfer); this engine's
 * job is to make the bookkeeping match reality exactly once even when an
 * operator double-clicks, a batch job retries, or two admins act on
 * overlapping filtered views at the same time. The mandatory admin reference
 * forces a distinct proof-of-transfer per request.
 *
 * @dependencies
 * - context, errors, log, strings: Standard Go libraries.
 * - github.com/google/uuid: Record identifiers.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Best-effort notification events.
 */

package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/sokoni/settlement-service/internal/domain"
	"github.com/sokoni/settlement-service/internal/store"
	"github.com/sokoni/settlement-service/pkg/rabbitmq"
)

// WithdrawalService owns the withdrawal-request lifecycle and batch payout
// reconciliation.
type WithdrawalService struct {
	repo          store.Repository
	events        rabbitmq.Publisher
	eventExchange string
}

// NewWithdrawalService creates a new withdrawal settlement engine instance.
func NewWithdrawalService(repo store.Repository, events rabbitmq.Publisher, eventExchange string) *WithdrawalService {
	return &WithdrawalService{repo: repo, events: events, eventExchange: eventExchange}
}

func validUserType(userType string) bool {
	switch userType {
	case domain.UserTypeClient, domain.UserTypeDriver, domain.UserTypeSeller, domain.UserTypePartner:
		return true
	}
	return false
}

// RequestWithdrawal reserves the funds and records a pending request as one
// transactional unit. The debit at creation is what prevents the same
// balance backing two withdrawals.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, userID uuid.UUID, payload domain.CreateWithdrawalPayload) (*domain.WithdrawalRequest, error) {
	if payload.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !validUserType(payload.UserType) {
		return nil, errors.New("unknown user type")
	}
	if payload.WithdrawalMethod == "" {
		payload.WithdrawalMethod = domain.WithdrawalMethodMobileMoney
	}
	if payload.WithdrawalMethod == domain.WithdrawalMethodMobileMoney {
		if strings.TrimSpace(payload.MobileMoneyProvider) == "" || strings.TrimSpace(payload.MobileMoneyPhone) == "" {
			return nil, errors.New("mobile money provider and phone are required")
		}
	}

	req := &domain.WithdrawalRequest{
		ID:                  uuid.New(),
		UserID:              userID,
		UserType:            payload.UserType,
		Amount:              payload.Amount,
		Currency:            payload.Currency,
		WithdrawalMethod:    payload.WithdrawalMethod,
		MobileMoneyProvider: strings.TrimSpace(payload.MobileMoneyProvider),
		MobileMoneyPhone:    strings.TrimSpace(payload.MobileMoneyPhone),
		Status:              domain.WithdrawalStatusPending,
	}

	if err := s.repo.CreateWithdrawalRequestAtomic(ctx, req); err != nil {
		return nil, err
	}

	log.Printf("level=info component=withdrawal msg=\"withdrawal requested\" request_id=%s user_id=%s amount=%d", req.ID, userID, req.Amount)
	s.notify(ctx, req.UserID, "withdrawal.pending", req)
	return req, nil
}

// MarkPaid records the operator's out-of-band payout. The admin reference is
// mandatory as proof of transfer. A repeated call for the same id returns
// store.ErrWithdrawalNotPending, which the caller surfaces as already
// processed rather than a double payment.
func (s *WithdrawalService) MarkPaid(ctx context.Context, requestID uuid.UUID, operatorID string, payload domain.MarkPaidPayload) (*domain.WithdrawalRequest, error) {
	reference := strings.TrimSpace(payload.AdminReference)
	if reference == "" {
		return nil, ErrAdminReferenceRequired
	}

	paid, err := s.repo.MarkWithdrawalPaidAtomic(ctx, requestID, operatorID, reference, strings.TrimSpace(payload.Notes))
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=withdrawal msg=\"withdrawal marked paid\" request_id=%s operator=%s reference=%s amount=%d", paid.ID, operatorID, reference, paid.Amount)
	s.notify(ctx, paid.UserID, "withdrawal.paid", paid)
	return paid, nil
}

// Reject refuses a pending request and credits the reserved funds back, both
// in one transaction, restoring the wallet to exactly its pre-request value.
func (s *WithdrawalService) Reject(ctx context.Context, requestID uuid.UUID, operatorID, reason string) (*domain.WithdrawalRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrRejectReasonRequired
	}

	rejected, err := s.repo.RejectWithdrawalAtomic(ctx, requestID, operatorID, reason)
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=withdrawal msg=\"withdrawal rejected\" request_id=%s operator=%s reason=%q", rejected.ID, operatorID, reason)
	s.notify(ctx, rejected.UserID, "withdrawal.rejected", rejected)
	return rejected, nil
}

// BatchMarkPaid applies MarkPaid to each item in its own atomic unit.
// Partial failure of one id never rolls back the others; the caller gets one
// outcome row per id.
func (s *WithdrawalService) BatchMarkPaid(ctx context.Context, operatorID string, items []domain.BatchMarkPaidItem) []domain.BatchMarkPaidRow {
	rows := make([]domain.BatchMarkPaidRow, 0, len(items))
	for _, item := range items {
		row := domain.BatchMarkPaidRow{RequestID: item.RequestID}
		_, err := s.MarkPaid(ctx, item.RequestID, operatorID, domain.MarkPaidPayload{
			AdminReference: item.AdminReference,
			Notes:          item.Notes,
		})
		switch {
		case err == nil:
			row.Outcome = domain.BatchOutcomePaid
		case errors.Is(err, store.ErrWithdrawalNotPending):
			row.Outcome = domain.BatchOutcomeAlreadyProcessed
		case errors.Is(err, store.ErrWithdrawalNotFound):
			row.Outcome = domain.BatchOutcomeNotFound
		default:
			row.Outcome = domain.BatchOutcomeFailed
			row.Error = err.Error()
			log.Printf("level=warn component=withdrawal flow=batch_mark_paid msg=\"item failed\" request_id=%s err=%v", item.RequestID, err)
		}
		rows = append(rows, row)
	}
	return rows
}

// GetRequest returns a single withdrawal request.
func (s *WithdrawalService) GetRequest(ctx context.Context, requestID uuid.UUID) (*domain.WithdrawalRequest, error) {
	return s.repo.FindWithdrawalRequestByID(ctx, requestID)
}

// ListRequests returns withdrawal requests for admin and user views.
func (s *WithdrawalService) ListRequests(ctx context.Context, opts domain.WithdrawalListOptions) ([]domain.WithdrawalRequest, error) {
	return s.repo.ListWithdrawalRequests(ctx, opts)
}

// GetWalletBalance returns the user's current wallet balance.
func (s *WithdrawalService) GetWalletBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.GetWalletBalance(ctx, userID)
}

// ListWalletEntries returns the audit trail of wallet movements.
func (s *WithdrawalService) ListWalletEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.WalletEntry, error) {
	return s.repo.ListWalletEntries(ctx, userID, limit, offset)
}

func (s *WithdrawalService) notify(ctx context.Context, recipientID uuid.UUID, kind string, req *domain.WithdrawalRequest) {
	if s.events == nil {
		return
	}
	event := rabbitmq.NotificationEvent{
		RecipientID: recipientID,
		Kind:        kind,
		Payload: map[string]interface{}{
			"request_id": req.ID.String(),
			"status":     req.Status,
			"amount":     req.Amount,
			"currency":   req.Currency,
		},
	}
	if err := s.events.PublishNotification(ctx, s.eventExchange, event); err != nil {
		log.Printf("level=warn component=withdrawal msg=\"notification publish failed\" request_id=%s kind=%s err=%v", req.ID, kind, err)
	}
}
