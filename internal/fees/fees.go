// Package fees derives the platform fee breakdown for a donation.
// Pure arithmetic, no I/O.
package fees

import "github.com/shopspring/decimal"

// Config holds the platform fee rates. It is loaded once at startup
// and passed explicitly wherever fees are derived; a persisted
// intent's snapshot is never recomputed against a newer Config.
type Config struct {
	FixedFee         decimal.Decimal // flat fee added to every gift
	PctFee           decimal.Decimal // fraction of the base amount, e.g. 0.0075
	SuperadminCutPct decimal.Decimal // share of the platform fee routed to the operator
}

// Breakdown is the fee split derived from a base donation amount.
type Breakdown struct {
	Amount        decimal.Decimal // base donation
	PlatformFee   decimal.Decimal // fixed + amount*pct
	AmountGross   decimal.Decimal // amount + platform fee: what the payer is charged
	SuperadminCut decimal.Decimal // platform fee * superadmin cut pct
}

// Calculate derives the breakdown for a base amount. Each step rounds
// half-up to 2 decimals before the next, so results stay bit-for-bit
// stable against snapshots persisted by earlier runs.
func Calculate(amount decimal.Decimal, cfg Config) Breakdown {
	platformFee := round2(cfg.FixedFee.Add(amount.Mul(cfg.PctFee)))
	gross := round2(amount.Add(platformFee))
	cut := round2(platformFee.Mul(cfg.SuperadminCutPct))
	return Breakdown{
		Amount:        round2(amount),
		PlatformFee:   platformFee,
		AmountGross:   gross,
		SuperadminCut: cut,
	}
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
