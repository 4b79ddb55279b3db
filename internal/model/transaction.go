package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one append-only ledger row, one-to-one with a PAID
// PaymentIntent. Monetary fields are never changed after insert; the
// only permitted update is backfilling the gateway-reported fee the
// first time the gateway discloses it.
type Transaction struct {
	ID              string `json:"id"`
	PaymentIntentID string `json:"payment_intent_id"` // unique: at most one row per intent

	Amount              decimal.Decimal     `json:"amount"`
	PlatformFeeAmount   decimal.Decimal     `json:"platform_fee_amount"`
	GatewayFeeAmount    decimal.NullDecimal `json:"gateway_fee_amount"` // null until the gateway reports it
	ChurchNetAmount     decimal.Decimal     `json:"church_net_amount"`  // amount - gateway fee
	AmountGross         decimal.Decimal     `json:"amount_gross"`
	SuperadminCutAmount decimal.Decimal     `json:"superadmin_cut_amount"`

	Reference         string `json:"reference"`
	Channel           string `json:"channel"`
	Provider          string `json:"provider"`
	ProviderPaymentID string `json:"provider_payment_id"`

	CreatedAt time.Time `json:"created_at"`
}
