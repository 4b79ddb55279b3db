package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/tiende/backend/internal/model"
)

// Store is the persistence surface of the reconciliation engine.
//
// InTx runs fn against a Store bound to one database transaction: an
// error from fn rolls every mutation back. The Get* methods take a
// row lock when called inside InTx, so concurrent deliveries of the
// same notification serialize on the intent/subscription/link rows.
// Correctness does not depend on the lock alone: the uniqueness
// constraints surfaced as ErrDuplicate are the ultimate arbiter.
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error

	// Payment intents
	GetPaymentIntentByMPaymentID(ctx context.Context, mPaymentID string) (*model.PaymentIntent, error)
	CreatePaymentIntent(ctx context.Context, intent *model.PaymentIntent) error
	// MarkPaymentIntentTerminal conditionally moves an intent to a
	// terminal status; a row already PAID is left untouched and false
	// is returned.
	MarkPaymentIntentTerminal(ctx context.Context, id string, status model.PaymentStatus, providerPaymentID string) (bool, error)

	// Ledger
	GetTransactionByIntentID(ctx context.Context, paymentIntentID string) (*model.Transaction, error)
	InsertTransaction(ctx context.Context, tr *model.Transaction) error
	BackfillTransactionGatewayFee(ctx context.Context, paymentIntentID string, gatewayFee, churchNet decimal.Decimal) error
	TransactionExistsForProviderPayment(ctx context.Context, providerPaymentID string) (bool, error)

	// Recurring giving
	GetRecurringGivingByID(ctx context.Context, id string) (*model.RecurringGiving, error)
	GetRecurringGivingByToken(ctx context.Context, token string) (*model.RecurringGiving, error)
	UpdateRecurringGiving(ctx context.Context, rg *model.RecurringGiving) error

	// Giving links
	GetGivingLinkByID(ctx context.Context, id string) (*model.GivingLink, error)
	UpdateGivingLinkUsage(ctx context.Context, link *model.GivingLink) error
}
