package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurringStatus is the state of a standing donation subscription.
type RecurringStatus string

const (
	RecurringPendingSetup RecurringStatus = "PENDING_SETUP"
	RecurringActive       RecurringStatus = "ACTIVE"
	RecurringCompleted    RecurringStatus = "COMPLETED"
	RecurringCancelled    RecurringStatus = "CANCELLED"
	RecurringFailed       RecurringStatus = "FAILED"
)

// Frequency encodes the billing interval the way the gateway expects.
type Frequency int

const (
	FrequencyWeekly    Frequency = 1
	FrequencyBiweekly  Frequency = 2
	FrequencyMonthly   Frequency = 3
	FrequencyQuarterly Frequency = 4
	FrequencyBiannual  Frequency = 5
	FrequencyAnnual    Frequency = 6
)

// RecurringGiving is a standing donation subscription. Created by the
// checkout flow in PENDING_SETUP; only this service mutates it, in
// response to confirmed charge cycles.
type RecurringGiving struct {
	ID       string `json:"id"`
	ChurchID string `json:"church_id"`
	FundID   string `json:"fund_id"`
	MemberID string `json:"member_id"`

	Status          RecurringStatus `json:"status"`
	Frequency       Frequency       `json:"frequency"`
	Cycles          int             `json:"cycles"` // 0 = indefinite
	CyclesCompleted int             `json:"cycles_completed"`

	// Amount snapshot taken at subscription creation. Cycle intents
	// copy this rather than recomputing from live fee configuration,
	// so a mid-subscription rate change never alters existing plans.
	DonationAmount      decimal.Decimal `json:"donation_amount"`
	PlatformFeeAmount   decimal.Decimal `json:"platform_fee_amount"`
	GrossAmount         decimal.Decimal `json:"gross_amount"`
	SuperadminCutAmount decimal.Decimal `json:"superadmin_cut_amount"`

	PayfastToken  string     `json:"-"` // gateway subscription token, assigned on first successful cycle
	LastChargedAt *time.Time `json:"last_charged_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether no further cycle may advance the record.
func (s RecurringStatus) IsTerminal() bool {
	switch s {
	case RecurringCompleted, RecurringCancelled, RecurringFailed:
		return true
	}
	return false
}

// ApplySuccessfulCharge advances the subscription for a completed
// charge of the given cycle. CyclesCompleted is monotonic so that
// duplicate or out-of-order deliveries can never move it backwards,
// and a terminal subscription absorbs late deliveries unchanged.
func (r *RecurringGiving) ApplySuccessfulCharge(cycleNo int, gatewayToken string, now time.Time) {
	if r.Status.IsTerminal() {
		return
	}
	if cycleNo > r.CyclesCompleted {
		r.CyclesCompleted = cycleNo
	}
	if r.PayfastToken == "" && gatewayToken != "" {
		r.PayfastToken = gatewayToken
	}
	t := now
	r.LastChargedAt = &t

	if r.Cycles > 0 && r.CyclesCompleted >= r.Cycles {
		r.Status = RecurringCompleted
		return
	}
	r.Status = RecurringActive
}

// ApplyFailedCharge marks the subscription FAILED, unless at least one
// cycle already completed: a single missed payment on an otherwise
// healthy subscription does not kill it.
func (r *RecurringGiving) ApplyFailedCharge() {
	if r.Status.IsTerminal() {
		return
	}
	if r.CyclesCompleted == 0 {
		r.Status = RecurringFailed
	}
}

// ApplyCancelledCharge marks the subscription CANCELLED unless it
// already ran to completion. CancelledAt is set once.
func (r *RecurringGiving) ApplyCancelledCharge(now time.Time) {
	if r.Status == RecurringCompleted || r.Status == RecurringCancelled {
		return
	}
	r.Status = RecurringCancelled
	if r.CancelledAt == nil {
		t := now
		r.CancelledAt = &t
	}
}
