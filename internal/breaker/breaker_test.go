package breaker

import (
	"errors"
	"testing"
	"time"
)

func TestOpensAfterThreshold(t *testing.T) {
	b := New(5, time.Hour)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	b.SetNow(func() time.Time { return now })

	for i := 0; i < 4; i++ {
		if err := b.Allow("@acct"); err != nil {
			t.Fatalf("failure %d: circuit opened early: %v", i, err)
		}
		b.RecordFailure("@acct")
	}
	if err := b.Allow("@acct"); err != nil {
		t.Fatalf("4 failures should not open a threshold-5 circuit: %v", err)
	}
	b.RecordFailure("@acct")

	if err := b.Allow("@acct"); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen after 5th failure, got %v", err)
	}
}

func TestSuccessResetsCount(t *testing.T) {
	b := New(3, time.Hour)
	for i := 0; i < 2; i++ {
		b.RecordFailure("@acct")
	}
	b.RecordSuccess("@acct")
	for i := 0; i < 2; i++ {
		b.RecordFailure("@acct")
	}
	if err := b.Allow("@acct"); err != nil {
		t.Fatalf("success should have reset the streak: %v", err)
	}
}

func TestHalfOpenAfterCooldown(t *testing.T) {
	b := New(2, time.Hour)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	b.SetNow(func() time.Time { return now })

	b.RecordFailure("@acct")
	b.RecordFailure("@acct")
	if err := b.Allow("@acct"); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	// Mid-cooldown stays closed to traffic.
	now = now.Add(30 * time.Minute)
	if err := b.Allow("@acct"); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected still open at 30m, got %v", err)
	}

	// Past the cooldown one probe goes through.
	now = now.Add(31 * time.Minute)
	if err := b.Allow("@acct"); err != nil {
		t.Fatalf("expected half-open probe, got %v", err)
	}

	// A failed probe re-opens for a full cooldown.
	b.RecordFailure("@acct")
	if err := b.Allow("@acct"); !errors.Is(err, ErrOpen) {
		t.Fatalf("failed probe should re-open, got %v", err)
	}

	// A successful probe closes it.
	now = now.Add(2 * time.Hour)
	if err := b.Allow("@acct"); err != nil {
		t.Fatalf("probe after second cooldown: %v", err)
	}
	b.RecordSuccess("@acct")
	if err := b.Allow("@acct"); err != nil {
		t.Fatalf("circuit should be closed after success: %v", err)
	}
}

func TestAccountsIsolated(t *testing.T) {
	b := New(2, time.Hour)
	b.RecordFailure("@bad")
	b.RecordFailure("@bad")
	if err := b.Allow("@bad"); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected @bad open, got %v", err)
	}
	if err := b.Allow("@good"); err != nil {
		t.Fatalf("@good should be unaffected: %v", err)
	}

	total, open := b.Snapshot()
	if total != 2 || open != 1 {
		t.Fatalf("Snapshot = (%d, %d), want (2, 1)", total, open)
	}
}
