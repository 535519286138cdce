package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sokoni/settlement-service/internal/domain"
	"github.com/sokoni/settlement-service/internal/store"
)

type withdrawalRepoStub struct {
	store.Repository

	createErr error
	created   *domain.WithdrawalRequest

	markPaidErrByID map[uuid.UUID]error
	markPaidCalls   int
	lastReference   string
	lastNotes       string

	rejectErr   error
	rejectCalls int
}

func (s *withdrawalRepoStub) CreateWithdrawalRequestAtomic(ctx context.Context, req *domain.WithdrawalRequest) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = req
	return nil
}

func (s *withdrawalRepoStub) MarkWithdrawalPaidAtomic(ctx context.Context, requestID uuid.UUID, processedBy, adminReference, notes string) (*domain.WithdrawalRequest, error) {
	s.markPaidCalls++
	s.lastReference = adminReference
	s.lastNotes = notes
	if err, ok := s.markPaidErrByID[requestID]; ok && err != nil {
		return nil, err
	}
	return &domain.WithdrawalRequest{
		ID:             requestID,
		UserID:         uuid.New(),
		Amount:         25000,
		Status:         domain.WithdrawalStatusPaid,
		AdminReference: &adminReference,
		ProcessedBy:    &processedBy,
	}, nil
}

func (s *withdrawalRepoStub) RejectWithdrawalAtomic(ctx context.Context, requestID uuid.UUID, processedBy, reason string) (*domain.WithdrawalRequest, error) {
	s.rejectCalls++
	if s.rejectErr != nil {
		return nil, s.rejectErr
	}
	return &domain.WithdrawalRequest{
		ID:            requestID,
		UserID:        uuid.New(),
		Amount:        25000,
		Status:        domain.WithdrawalStatusRejected,
		FailureReason: &reason,
	}, nil
}

func newWithdrawalTestService(repo store.Repository) *WithdrawalService {
	return NewWithdrawalService(repo, nil, "")
}

func TestRequestWithdrawal_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		payload domain.CreateWithdrawalPayload
	}{
		{
			name:    "non-positive amount",
			payload: domain.CreateWithdrawalPayload{UserType: domain.UserTypeSeller, Amount: 0},
		},
		{
			name:    "unknown user type",
			payload: domain.CreateWithdrawalPayload{UserType: "merchant", Amount: 10000},
		},
		{
			name: "mobile money without a phone",
			payload: domain.CreateWithdrawalPayload{
				UserType:            domain.UserTypeDriver,
				Amount:              10000,
				MobileMoneyProvider: "orange",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &withdrawalRepoStub{}
			svc := newWithdrawalTestService(repo)

			if _, err := svc.RequestWithdrawal(context.Background(), uuid.New(), tt.payload); err == nil {
				t.Fatal("expected a validation error")
			}
			if repo.created != nil {
				t.Fatal("expected no request to be persisted")
			}
		})
	}
}

func TestRequestWithdrawal_DefaultsToMobileMoney(t *testing.T) {
	repo := &withdrawalRepoStub{}
	svc := newWithdrawalTestService(repo)
	userID := uuid.New()

	req, err := svc.RequestWithdrawal(context.Background(), userID, domain.CreateWithdrawalPayload{
		UserType:            domain.UserTypeSeller,
		Amount:              50000,
		Currency:            "XOF",
		MobileMoneyProvider: "orange",
		MobileMoneyPhone:    " +22507000001 ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.WithdrawalMethod != domain.WithdrawalMethodMobileMoney {
		t.Fatalf("expected mobile_money, got %q", req.WithdrawalMethod)
	}
	if req.Status != domain.WithdrawalStatusPending {
		t.Fatalf("expected status pending, got %s", req.Status)
	}
	if req.MobileMoneyPhone != "+22507000001" {
		t.Fatalf("expected the phone to be trimmed, got %q", req.MobileMoneyPhone)
	}
	if req.UserID != userID {
		t.Fatal("expected the request to carry the authenticated user id")
	}
}

func TestRequestWithdrawal_SurfacesInsufficientFunds(t *testing.T) {
	repo := &withdrawalRepoStub{createErr: store.ErrInsufficientFunds}
	svc := newWithdrawalTestService(repo)

	_, err := svc.RequestWithdrawal(context.Background(), uuid.New(), domain.CreateWithdrawalPayload{
		UserType:            domain.UserTypeSeller,
		Amount:              50000,
		MobileMoneyProvider: "orange",
		MobileMoneyPhone:    "+22507000001",
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected store.ErrInsufficientFunds, got %v", err)
	}
}

func TestMarkPaid_RequiresAnAdminReference(t *testing.T) {
	tests := []struct {
		name      string
		reference string
	}{
		{name: "empty reference", reference: ""},
		{name: "whitespace reference", reference: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &withdrawalRepoStub{}
			svc := newWithdrawalTestService(repo)

			_, err := svc.MarkPaid(context.Background(), uuid.New(), "ops-1", domain.MarkPaidPayload{
				AdminReference: tt.reference,
			})
			if !errors.Is(err, ErrAdminReferenceRequired) {
				t.Fatalf("expected ErrAdminReferenceRequired, got %v", err)
			}
			if repo.markPaidCalls != 0 {
				t.Fatal("expected no transition attempt without a reference")
			}
		})
	}
}

func TestMarkPaid_TrimsReferenceAndNotes(t *testing.T) {
	repo := &withdrawalRepoStub{}
	svc := newWithdrawalTestService(repo)

	paid, err := svc.MarkPaid(context.Background(), uuid.New(), "ops-1", domain.MarkPaidPayload{
		AdminReference: "  MM-20260831-001  ",
		Notes:          "  paid via orange money  ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastReference != "MM-20260831-001" {
		t.Fatalf("expected a trimmed reference, got %q", repo.lastReference)
	}
	if repo.lastNotes != "paid via orange money" {
		t.Fatalf("expected trimmed notes, got %q", repo.lastNotes)
	}
	if paid.Status != domain.WithdrawalStatusPaid {
		t.Fatalf("expected status paid, got %s", paid.Status)
	}
}

func TestMarkPaid_SecondCallIsAlreadyProcessed(t *testing.T) {
	requestID := uuid.New()
	repo := &withdrawalRepoStub{
		markPaidErrByID: map[uuid.UUID]error{requestID: store.ErrWithdrawalNotPending},
	}
	svc := newWithdrawalTestService(repo)

	_, err := svc.MarkPaid(context.Background(), requestID, "ops-1", domain.MarkPaidPayload{
		AdminReference: "MM-20260831-001",
	})
	if !errors.Is(err, store.ErrWithdrawalNotPending) {
		t.Fatalf("expected store.ErrWithdrawalNotPending, got %v", err)
	}
}

func TestReject_RequiresAReason(t *testing.T) {
	repo := &withdrawalRepoStub{}
	svc := newWithdrawalTestService(repo)

	_, err := svc.Reject(context.Background(), uuid.New(), "ops-1", "  ")
	if !errors.Is(err, ErrRejectReasonRequired) {
		t.Fatalf("expected ErrRejectReasonRequired, got %v", err)
	}
	if repo.rejectCalls != 0 {
		t.Fatal("expected no transition attempt without a reason")
	}
}

func TestBatchMarkPaid_IndependentOutcomes(t *testing.T) {
	paidID := uuid.New()
	processedID := uuid.New()
	missingID := uuid.New()
	brokenID := uuid.New()

	repo := &withdrawalRepoStub{
		markPaidErrByID: map[uuid.UUID]error{
			processedID: store.ErrWithdrawalNotPending,
			missingID:   store.ErrWithdrawalNotFound,
			brokenID:    errors.New("connection reset"),
		},
	}
	svc := newWithdrawalTestService(repo)

	rows := svc.BatchMarkPaid(context.Background(), "ops-1", []domain.BatchMarkPaidItem{
		{RequestID: paidID, AdminReference: "MM-001"},
		{RequestID: processedID, AdminReference: "MM-002"},
		{RequestID: missingID, AdminReference: "MM-003"},
		{RequestID: brokenID, AdminReference: "MM-004"},
		{RequestID: uuid.New()}, // missing reference
	})

	if len(rows) != 5 {
		t.Fatalf("expected 5 outcome rows, got %d", len(rows))
	}
	wantOutcomes := []string{
		domain.BatchOutcomePaid,
		domain.BatchOutcomeAlreadyProcessed,
		domain.BatchOutcomeNotFound,
		domain.BatchOutcomeFailed,
		domain.BatchOutcomeFailed,
	}
	for i, want := range wantOutcomes {
		if rows[i].Outcome != want {
			t.Fatalf("row %d: expected outcome %q, got %q", i, want, rows[i].Outcome)
		}
	}
	if rows[3].Error == "" {
		t.Fatal("expected the failed row to carry the error message")
	}
}
