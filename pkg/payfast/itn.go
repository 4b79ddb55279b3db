// Package payfast implements the PayFast ITN (Instant Transaction
// Notification) wire protocol for Tiende. Uses the raw notification
// bytes directly (no SDK) because the gateway signs exactly the bytes
// it sent.
package payfast

import (
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
)

// Payment statuses the gateway reports on an ITN.
const (
	StatusComplete  = "COMPLETE"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Notification は ITN を検証済みの型付きレコードにしたもの。
// パイプライン全体で生のフォーム値を読み回さず、ここで一度だけ
// パース・検証する。
type Notification struct {
	MPaymentID    string // correlation id chosen at intent creation
	PFPaymentID   string // the gateway's own payment id
	PaymentStatus string // COMPLETE / FAILED / CANCELLED

	AmountGross decimal.Decimal     // what the payer was charged
	AmountFee   decimal.NullDecimal // gateway's own fee (reported at settlement)
	AmountNet   decimal.NullDecimal

	Token      string // recurring subscription token
	CustomStr1 string // recurring giving correlation id
	CustomStr2 string // giving link id echo

	ItemName     string
	EmailAddress string
	Signature    string
}

// IsComplete reports whether the ITN describes a successful charge.
func (n *Notification) IsComplete() bool { return n.PaymentStatus == StatusComplete }

// IsCancelled reports whether the ITN describes a cancelled charge.
func (n *Notification) IsCancelled() bool { return n.PaymentStatus == StatusCancelled }

// GatewayFee returns the gateway's fee as a positive amount, or zero
// when the gateway has not reported one. The gateway sends amount_fee
// as a negative value on the wire.
func (n *Notification) GatewayFee() decimal.Decimal {
	if !n.AmountFee.Valid {
		return decimal.Zero
	}
	return n.AmountFee.Decimal.Abs()
}

// HasGatewayFee reports whether the gateway disclosed its fee.
func (n *Notification) HasGatewayFee() bool { return n.AmountFee.Valid }

// ParseNotification parses the raw form-encoded ITN body into a
// Notification. Unknown fields are ignored; a missing or unrecognized
// payment_status, or an unparseable amount, is rejected here so the
// rest of the pipeline only ever sees well-formed values.
func ParseNotification(raw []byte) (*Notification, error) {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, fmt.Errorf("payfast: malformed notification body: %w", err)
	}

	n := &Notification{
		MPaymentID:    values.Get("m_payment_id"),
		PFPaymentID:   values.Get("pf_payment_id"),
		PaymentStatus: values.Get("payment_status"),
		Token:         values.Get("token"),
		CustomStr1:    values.Get("custom_str1"),
		CustomStr2:    values.Get("custom_str2"),
		ItemName:      values.Get("item_name"),
		EmailAddress:  values.Get("email_address"),
		Signature:     values.Get("signature"),
	}

	switch n.PaymentStatus {
	case StatusComplete, StatusFailed, StatusCancelled:
	case "":
		return nil, fmt.Errorf("payfast: missing payment_status")
	default:
		return nil, fmt.Errorf("payfast: unrecognized payment_status %q", n.PaymentStatus)
	}

	if s := values.Get("amount_gross"); s != "" {
		if n.AmountGross, err = decimal.NewFromString(s); err != nil {
			return nil, fmt.Errorf("payfast: invalid amount_gross %q", s)
		}
	} else if n.IsComplete() {
		return nil, fmt.Errorf("payfast: missing amount_gross on COMPLETE notification")
	}

	if s := values.Get("amount_fee"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("payfast: invalid amount_fee %q", s)
		}
		n.AmountFee = decimal.NewNullDecimal(d)
	}
	if s := values.Get("amount_net"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("payfast: invalid amount_net %q", s)
		}
		n.AmountNet = decimal.NewNullDecimal(d)
	}

	if n.MPaymentID == "" && n.Token == "" && n.CustomStr1 == "" {
		return nil, fmt.Errorf("payfast: notification carries no correlation identifier")
	}

	return n, nil
}
