package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle status of a PaymentIntent.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "PENDING"
	StatusPaid      PaymentStatus = "PAID"
	StatusFailed    PaymentStatus = "FAILED"
	StatusCancelled PaymentStatus = "CANCELLED"
	StatusRejected  PaymentStatus = "REJECTED"
	// PREPARED/RECORDED/CONFIRMED belong to the intent-creation flow,
	// which lives outside this service. The reconciliation engine only
	// ever writes PAID, FAILED or CANCELLED.
	StatusPrepared  PaymentStatus = "PREPARED"
	StatusRecorded  PaymentStatus = "RECORDED"
	StatusConfirmed PaymentStatus = "CONFIRMED"
)

// PaymentIntent is one attempted charge. It is created in PENDING by
// the checkout flow before the member is redirected to the gateway;
// this service moves it to exactly one terminal status afterwards.
type PaymentIntent struct {
	ID         string `json:"id"`
	MPaymentID string `json:"m_payment_id"` // correlation key echoed back by the gateway, unique
	ChurchID   string `json:"church_id"`
	FundID     string `json:"fund_id"`

	Amount   decimal.Decimal `json:"amount"` // base donation, 2dp
	Currency string          `json:"currency"`
	Status   PaymentStatus   `json:"status"`

	// Fee snapshot, fixed at creation. Never recomputed, even if the
	// configured rates change later.
	PlatformFeeAmount   decimal.Decimal `json:"platform_fee_amount"`
	PlatformFeePct      decimal.Decimal `json:"platform_fee_pct"`
	PlatformFeeFixed    decimal.Decimal `json:"platform_fee_fixed"`
	AmountGross         decimal.Decimal `json:"amount_gross"`
	SuperadminCutAmount decimal.Decimal `json:"superadmin_cut_amount"`
	SuperadminCutPct    decimal.Decimal `json:"superadmin_cut_pct"`

	RecurringGivingID  string `json:"recurring_giving_id,omitempty"`
	RecurringCycleNo   int    `json:"recurring_cycle_no,omitempty"` // 0 = not a recurring cycle
	GivingLinkID       string `json:"giving_link_id,omitempty"`
	OnBehalfOfMemberID string `json:"on_behalf_of_member_id,omitempty"`

	ProviderPaymentID string `json:"-"` // gateway's own id, set on confirmation

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the status permits no further transition.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusCancelled, StatusRejected:
		return true
	}
	return false
}
