package store

import (
	"errors"
	"testing"

	"github.com/sokoni/settlement-service/internal/domain"
)

func TestEscrowConflictError(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		expectFrom string
		want       error
	}{
		{
			name:       "released escrow reads as closed",
			status:     domain.EscrowStatusReleased,
			expectFrom: domain.EscrowStatusHeld,
			want:       ErrEscrowClosed,
		},
		{
			name:       "refunded escrow reads as closed",
			status:     domain.EscrowStatusRefunded,
			expectFrom: domain.EscrowStatusHeld,
			want:       ErrEscrowClosed,
		},
		{
			name:       "disputed escrow blocks a held-guarded transition",
			status:     domain.EscrowStatusDisputed,
			expectFrom: domain.EscrowStatusHeld,
			want:       ErrEscrowNotHeld,
		},
		{
			name:       "held escrow blocks a disputed-guarded resolution",
			status:     domain.EscrowStatusHeld,
			expectFrom: domain.EscrowStatusDisputed,
			want:       ErrEscrowNotDisputed,
		},
		{
			name:       "closed wins over the expected-from hint",
			status:     domain.EscrowStatusReleased,
			expectFrom: domain.EscrowStatusDisputed,
			want:       ErrEscrowClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := escrowConflictError(tt.status, tt.expectFrom)
			if !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
