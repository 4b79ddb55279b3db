package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GivingLinkStatus is the state of a shareable donation link.
type GivingLinkStatus string

const (
	LinkActive  GivingLinkStatus = "ACTIVE"
	LinkPaid    GivingLinkStatus = "PAID"
	LinkExpired GivingLinkStatus = "EXPIRED"
)

// Link amount types.
const (
	LinkAmountFixed = "FIXED"
	LinkAmountOpen  = "OPEN"
)

// GivingLink is a shareable, token-addressed, unauthenticated donation
// request usable a bounded number of times.
type GivingLink struct {
	ID          string              `json:"id"`
	Token       string              `json:"token"` // unique, unguessable
	AmountType  string              `json:"amount_type"`
	AmountFixed decimal.NullDecimal `json:"amount_fixed"`

	Status   GivingLinkStatus `json:"status"`
	MaxUses  int              `json:"max_uses"`
	UseCount int              `json:"use_count"`

	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
	PaidPaymentIntentID string     `json:"paid_payment_intent_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplyUse records one successful charge against the link. UseCount is
// capped at MaxUses and the paid fields are set-once, so replaying the
// same confirmation is harmless.
func (g *GivingLink) ApplyUse(paymentIntentID string, now time.Time) {
	if g.UseCount < g.MaxUses {
		g.UseCount++
	}
	if g.UseCount >= g.MaxUses {
		g.Status = LinkPaid
		if g.PaidAt == nil {
			t := now
			g.PaidAt = &t
		}
		if g.PaidPaymentIntentID == "" {
			g.PaidPaymentIntentID = paymentIntentID
		}
	}
}
