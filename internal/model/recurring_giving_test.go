package model

import (
	"testing"
	"time"
)

func activeSubscription(cycles, completed int) *RecurringGiving {
	return &RecurringGiving{
		ID:              "rg-1",
		Status:          RecurringActive,
		Frequency:       FrequencyMonthly,
		Cycles:          cycles,
		CyclesCompleted: completed,
	}
}

func TestApplySuccessfulCharge_AdvancesCycle(t *testing.T) {
	now := time.Now()
	rg := activeSubscription(12, 3)

	rg.ApplySuccessfulCharge(4, "tok-1", now)

	if rg.CyclesCompleted != 4 {
		t.Errorf("expected cyclesCompleted=4, got %d", rg.CyclesCompleted)
	}
	if rg.Status != RecurringActive {
		t.Errorf("expected ACTIVE, got %s", rg.Status)
	}
	if rg.LastChargedAt == nil || !rg.LastChargedAt.Equal(now) {
		t.Error("expected lastChargedAt set to charge time")
	}
}

func TestApplySuccessfulCharge_Monotonic(t *testing.T) {
	rg := activeSubscription(12, 5)

	// stale delivery for an earlier cycle
	rg.ApplySuccessfulCharge(3, "", time.Now())

	if rg.CyclesCompleted != 5 {
		t.Errorf("out-of-order delivery must not rewind cycles, got %d", rg.CyclesCompleted)
	}
}

func TestApplySuccessfulCharge_FinalCycleCompletes(t *testing.T) {
	rg := activeSubscription(3, 2)

	rg.ApplySuccessfulCharge(3, "", time.Now())

	if rg.Status != RecurringCompleted {
		t.Errorf("expected COMPLETED, got %s", rg.Status)
	}
}

func TestApplySuccessfulCharge_IndefiniteNeverCompletes(t *testing.T) {
	rg := activeSubscription(0, 99)

	rg.ApplySuccessfulCharge(100, "", time.Now())

	if rg.Status != RecurringActive {
		t.Errorf("indefinite subscription must stay ACTIVE, got %s", rg.Status)
	}
}

func TestApplySuccessfulCharge_TerminalAbsorbsLateDelivery(t *testing.T) {
	rg := activeSubscription(3, 3)
	rg.Status = RecurringCompleted

	rg.ApplySuccessfulCharge(2, "tok-late", time.Now())

	if rg.Status != RecurringCompleted {
		t.Errorf("late delivery must not reactivate, got %s", rg.Status)
	}
	if rg.PayfastToken != "" {
		t.Error("terminal subscription must not capture a token")
	}
}

func TestApplySuccessfulCharge_TokenSetOnce(t *testing.T) {
	rg := activeSubscription(0, 0)
	rg.Status = RecurringPendingSetup

	rg.ApplySuccessfulCharge(1, "tok-first", time.Now())
	rg.ApplySuccessfulCharge(2, "tok-other", time.Now())

	if rg.PayfastToken != "tok-first" {
		t.Errorf("token must be set once, got %q", rg.PayfastToken)
	}
	if rg.Status != RecurringActive {
		t.Errorf("expected ACTIVE after first cycle, got %s", rg.Status)
	}
}

func TestApplyFailedCharge(t *testing.T) {
	tests := []struct {
		name      string
		status    RecurringStatus
		completed int
		want      RecurringStatus
	}{
		{"first cycle failure kills", RecurringPendingSetup, 0, RecurringFailed},
		{"healthy subscription survives", RecurringActive, 2, RecurringActive},
		{"completed stays completed", RecurringCompleted, 3, RecurringCompleted},
		{"cancelled stays cancelled", RecurringCancelled, 1, RecurringCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rg := activeSubscription(3, tt.completed)
			rg.Status = tt.status
			rg.ApplyFailedCharge()
			if rg.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, rg.Status)
			}
		})
	}
}

func TestApplyCancelledCharge(t *testing.T) {
	now := time.Now()

	rg := activeSubscription(12, 2)
	rg.ApplyCancelledCharge(now)
	if rg.Status != RecurringCancelled {
		t.Errorf("expected CANCELLED, got %s", rg.Status)
	}
	if rg.CancelledAt == nil || !rg.CancelledAt.Equal(now) {
		t.Error("expected cancelledAt set")
	}

	// replay does not move the timestamp
	later := now.Add(time.Hour)
	rg.ApplyCancelledCharge(later)
	if !rg.CancelledAt.Equal(now) {
		t.Error("cancelledAt must be set once")
	}
}

func TestApplyCancelledCharge_CompletedNotOverridden(t *testing.T) {
	rg := activeSubscription(3, 3)
	rg.Status = RecurringCompleted

	rg.ApplyCancelledCharge(time.Now())

	if rg.Status != RecurringCompleted {
		t.Errorf("a completed plan cannot be cancelled, got %s", rg.Status)
	}
}

func TestApplyCancelledCharge_AfterFailure(t *testing.T) {
	rg := activeSubscription(3, 0)
	rg.Status = RecurringFailed

	rg.ApplyCancelledCharge(time.Now())

	if rg.Status != RecurringCancelled {
		t.Errorf("an explicit cancellation overrides FAILED, got %s", rg.Status)
	}
}
