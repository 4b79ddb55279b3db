package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/tiende/backend/internal/model"
)

// DB is the subset of pgx methods shared by a pool and a transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgStore struct {
	pool *pgxpool.Pool
	db   DB
	inTx bool
}

// NewPgStore returns a PostgreSQL-backed Store.
func NewPgStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool, db: pool}
}

// InTx は 1 つの DB トランザクションに束縛された Store で fn を実行する。
// fn がエラーを返した場合は全ての変更をロールバックする。
func (s *pgStore) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgStore{pool: s.pool, db: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// lock appends FOR UPDATE inside a transaction so concurrent
// deliveries for the same row serialize instead of racing.
func (s *pgStore) lock() string {
	if s.inTx {
		return " FOR UPDATE"
	}
	return ""
}

func isDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key")
}

// ---------------------------------------------------------------------------
// Payment intents
// ---------------------------------------------------------------------------

const paymentIntentCols = `id, m_payment_id, church_id, fund_id, amount, currency, status,
	platform_fee_amount, platform_fee_pct, platform_fee_fixed, amount_gross,
	superadmin_cut_amount, superadmin_cut_pct,
	COALESCE(recurring_giving_id, ''), COALESCE(recurring_cycle_no, 0),
	COALESCE(giving_link_id, ''), COALESCE(on_behalf_of_member_id, ''),
	COALESCE(provider_payment_id, ''), created_at, updated_at`

func scanPaymentIntent(scan func(...any) error) (*model.PaymentIntent, error) {
	p := &model.PaymentIntent{}
	return p, scan(
		&p.ID, &p.MPaymentID, &p.ChurchID, &p.FundID, &p.Amount, &p.Currency, &p.Status,
		&p.PlatformFeeAmount, &p.PlatformFeePct, &p.PlatformFeeFixed, &p.AmountGross,
		&p.SuperadminCutAmount, &p.SuperadminCutPct,
		&p.RecurringGivingID, &p.RecurringCycleNo,
		&p.GivingLinkID, &p.OnBehalfOfMemberID,
		&p.ProviderPaymentID, &p.CreatedAt, &p.UpdatedAt,
	)
}

func (s *pgStore) GetPaymentIntentByMPaymentID(ctx context.Context, mPaymentID string) (*model.PaymentIntent, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+paymentIntentCols+` FROM payment_intents WHERE m_payment_id = $1`+s.lock(),
		mPaymentID)
	p, err := scanPaymentIntent(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *pgStore) CreatePaymentIntent(ctx context.Context, intent *model.PaymentIntent) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO payment_intents
		 (id, m_payment_id, church_id, fund_id, amount, currency, status,
		  platform_fee_amount, platform_fee_pct, platform_fee_fixed, amount_gross,
		  superadmin_cut_amount, superadmin_cut_pct,
		  recurring_giving_id, recurring_cycle_no, giving_link_id, on_behalf_of_member_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		  NULLIF($14, ''), NULLIF($15, 0), NULLIF($16, ''), NULLIF($17, ''))`,
		intent.ID, intent.MPaymentID, intent.ChurchID, intent.FundID,
		intent.Amount, intent.Currency, intent.Status,
		intent.PlatformFeeAmount, intent.PlatformFeePct, intent.PlatformFeeFixed, intent.AmountGross,
		intent.SuperadminCutAmount, intent.SuperadminCutPct,
		intent.RecurringGivingID, intent.RecurringCycleNo,
		intent.GivingLinkID, intent.OnBehalfOfMemberID,
	)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

func (s *pgStore) MarkPaymentIntentTerminal(ctx context.Context, id string, status model.PaymentStatus, providerPaymentID string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE payment_intents
		 SET status = $2,
		     provider_payment_id = COALESCE(NULLIF($3, ''), provider_payment_id),
		     updated_at = NOW()
		 WHERE id = $1 AND status <> 'PAID'`,
		id, status, providerPaymentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ---------------------------------------------------------------------------
// Ledger
// ---------------------------------------------------------------------------

const transactionCols = `id, payment_intent_id, amount, platform_fee_amount,
	gateway_fee_amount, church_net_amount, amount_gross, superadmin_cut_amount,
	COALESCE(reference, ''), COALESCE(channel, ''), COALESCE(provider, ''),
	COALESCE(provider_payment_id, ''), created_at`

func scanTransaction(scan func(...any) error) (*model.Transaction, error) {
	tr := &model.Transaction{}
	return tr, scan(
		&tr.ID, &tr.PaymentIntentID, &tr.Amount, &tr.PlatformFeeAmount,
		&tr.GatewayFeeAmount, &tr.ChurchNetAmount, &tr.AmountGross, &tr.SuperadminCutAmount,
		&tr.Reference, &tr.Channel, &tr.Provider,
		&tr.ProviderPaymentID, &tr.CreatedAt,
	)
}

func (s *pgStore) GetTransactionByIntentID(ctx context.Context, paymentIntentID string) (*model.Transaction, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+transactionCols+` FROM transactions WHERE payment_intent_id = $1`,
		paymentIntentID)
	tr, err := scanTransaction(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func (s *pgStore) InsertTransaction(ctx context.Context, tr *model.Transaction) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO transactions
		 (payment_intent_id, amount, platform_fee_amount, gateway_fee_amount,
		  church_net_amount, amount_gross, superadmin_cut_amount,
		  reference, channel, provider, provider_payment_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7,
		  NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''))`,
		tr.PaymentIntentID, tr.Amount, tr.PlatformFeeAmount, tr.GatewayFeeAmount,
		tr.ChurchNetAmount, tr.AmountGross, tr.SuperadminCutAmount,
		tr.Reference, tr.Channel, tr.Provider, tr.ProviderPaymentID,
	)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// BackfillTransactionGatewayFee records the gateway-reported fee on an
// existing ledger row, first time only. The amount/fee-split columns
// written at insert are never touched.
func (s *pgStore) BackfillTransactionGatewayFee(ctx context.Context, paymentIntentID string, gatewayFee, churchNet decimal.Decimal) error {
	_, err := s.db.Exec(ctx,
		`UPDATE transactions
		 SET gateway_fee_amount = $2, church_net_amount = $3
		 WHERE payment_intent_id = $1 AND gateway_fee_amount IS NULL`,
		paymentIntentID, gatewayFee, churchNet)
	return err
}

func (s *pgStore) TransactionExistsForProviderPayment(ctx context.Context, providerPaymentID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE provider_payment_id = $1)`,
		providerPaymentID).Scan(&exists)
	return exists, err
}

// ---------------------------------------------------------------------------
// Recurring giving
// ---------------------------------------------------------------------------

const recurringGivingCols = `id, church_id, fund_id, member_id, status, frequency,
	cycles, cycles_completed, donation_amount, platform_fee_amount, gross_amount,
	superadmin_cut_amount, COALESCE(payfast_token, ''), last_charged_at, cancelled_at,
	created_at, updated_at`

func scanRecurringGiving(scan func(...any) error) (*model.RecurringGiving, error) {
	rg := &model.RecurringGiving{}
	return rg, scan(
		&rg.ID, &rg.ChurchID, &rg.FundID, &rg.MemberID, &rg.Status, &rg.Frequency,
		&rg.Cycles, &rg.CyclesCompleted, &rg.DonationAmount, &rg.PlatformFeeAmount, &rg.GrossAmount,
		&rg.SuperadminCutAmount, &rg.PayfastToken, &rg.LastChargedAt, &rg.CancelledAt,
		&rg.CreatedAt, &rg.UpdatedAt,
	)
}

func (s *pgStore) getRecurringGiving(ctx context.Context, where string, arg any) (*model.RecurringGiving, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+recurringGivingCols+` FROM recurring_givings WHERE `+where+` = $1`+s.lock(),
		arg)
	rg, err := scanRecurringGiving(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rg, nil
}

func (s *pgStore) GetRecurringGivingByID(ctx context.Context, id string) (*model.RecurringGiving, error) {
	return s.getRecurringGiving(ctx, "id", id)
}

func (s *pgStore) GetRecurringGivingByToken(ctx context.Context, token string) (*model.RecurringGiving, error) {
	return s.getRecurringGiving(ctx, "payfast_token", token)
}

func (s *pgStore) UpdateRecurringGiving(ctx context.Context, rg *model.RecurringGiving) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE recurring_givings
		 SET status = $2,
		     cycles_completed = GREATEST(cycles_completed, $3),
		     payfast_token = COALESCE(payfast_token, NULLIF($4, '')),
		     last_charged_at = COALESCE($5, last_charged_at),
		     cancelled_at = COALESCE(cancelled_at, $6),
		     updated_at = NOW()
		 WHERE id = $1`,
		rg.ID, rg.Status, rg.CyclesCompleted, rg.PayfastToken, rg.LastChargedAt, rg.CancelledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Giving links
// ---------------------------------------------------------------------------

const givingLinkCols = `id, token, amount_type, amount_fixed, status, max_uses, use_count,
	expires_at, paid_at, COALESCE(paid_payment_intent_id, ''), created_at, updated_at`

func scanGivingLink(scan func(...any) error) (*model.GivingLink, error) {
	g := &model.GivingLink{}
	return g, scan(
		&g.ID, &g.Token, &g.AmountType, &g.AmountFixed, &g.Status, &g.MaxUses, &g.UseCount,
		&g.ExpiresAt, &g.PaidAt, &g.PaidPaymentIntentID, &g.CreatedAt, &g.UpdatedAt,
	)
}

func (s *pgStore) GetGivingLinkByID(ctx context.Context, id string) (*model.GivingLink, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+givingLinkCols+` FROM giving_links WHERE id = $1`+s.lock(), id)
	g, err := scanGivingLink(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *pgStore) UpdateGivingLinkUsage(ctx context.Context, link *model.GivingLink) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE giving_links
		 SET use_count = LEAST(max_uses, GREATEST(use_count, $2)),
		     status = $3,
		     paid_at = COALESCE(paid_at, $4),
		     paid_payment_intent_id = COALESCE(paid_payment_intent_id, NULLIF($5, '')),
		     updated_at = NOW()
		 WHERE id = $1`,
		link.ID, link.UseCount, link.Status, link.PaidAt, link.PaidPaymentIntentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
