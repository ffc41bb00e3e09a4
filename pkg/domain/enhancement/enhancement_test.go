package enhancement

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDeriveRequestStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     RequestStatus
	}{
		{"all pending", []Status{StatusPending, StatusPending}, RequestReceived},
		{"mixed non-terminal", []Status{StatusPending, StatusProcessing}, RequestProcessing},
		{"all completed", []Status{StatusCompleted, StatusCompleted}, RequestCompleted},
		{"all failed", []Status{StatusFailed, StatusIndexingFailed}, RequestFailed},
		{"mixed terminal", []Status{StatusCompleted, StatusFailed}, RequestPartialFailed},
		{"expired ignored, rest completed", []Status{StatusExpired, StatusCompleted}, RequestCompleted},
		{"all expired", []Status{StatusExpired, StatusExpired}, RequestFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveRequestStatus(tt.statuses); got != tt.want {
				t.Errorf("DeriveRequestStatus(%v) = %v, want %v", tt.statuses, got, tt.want)
			}
		})
	}
}

func TestPendingEnhancementLeaseLifecycle(t *testing.T) {
	p := NewPendingEnhancement(uuid.New(), uuid.New(), nil, "test")
	batchID := uuid.New()
	expiry := time.Now().Add(10 * time.Minute)

	p.LeaseToBatch(batchID, expiry)
	if p.Status != StatusProcessing {
		t.Errorf("expected Processing after lease, got %v", p.Status)
	}
	if p.IsExpired(time.Now()) {
		t.Error("should not be expired immediately after leasing")
	}

	future := time.Now().Add(20 * time.Minute)
	if p.IsExpired(future) == false {
		t.Error("should be expired once now is past ExpiresAt")
	}
}

func TestRenewLeaseRefusedAfterExpiry(t *testing.T) {
	p := NewPendingEnhancement(uuid.New(), uuid.New(), nil, "test")
	past := time.Now().Add(-time.Minute)
	p.LeaseToBatch(uuid.New(), past)

	ok := p.RenewLease(time.Now().Add(time.Hour), time.Now())
	if ok {
		t.Error("renewal should be refused once the lease has expired (B5)")
	}
}

func TestRetryDepth(t *testing.T) {
	root := NewPendingEnhancement(uuid.New(), uuid.New(), nil, "test")
	root.Expire()
	first := root.Retry()
	expiredFirst := first
	expiredFirst.Expire()
	second := expiredFirst.Retry()

	chain := map[uuid.UUID]PendingEnhancement{
		root.ID:  root,
		first.ID: expiredFirst,
	}

	if depth := RetryDepth(second, chain); depth != 2 {
		t.Errorf("RetryDepth() = %d, want 2", depth)
	}
}
