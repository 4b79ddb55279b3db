package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tiende/backend/internal/fees"
	"github.com/tiende/backend/internal/model"
	"github.com/tiende/backend/internal/repository"
	"github.com/tiende/backend/pkg/payfast"
)

// Sentinel errors the ITN handler maps to HTTP statuses.
var (
	// ErrBadSignature: the notification failed authentication. Nothing
	// was read from or written to the database.
	ErrBadSignature = errors.New("itn signature verification failed")
	// ErrValidation: missing/malformed field or amount mismatch.
	ErrValidation = errors.New("itn validation failed")
	// ErrUnknownReference: the notification resolves to no known
	// payment intent or subscription.
	ErrUnknownReference = errors.New("itn references no known intent or subscription")
)

// errAlreadyProcessed marks a recognized duplicate delivery inside the
// transaction; ProcessNotification converts it to success so the
// gateway stops retrying.
var errAlreadyProcessed = errors.New("already processed")

// Notifier は照合結果を会員へ通知するためのミニマムインターフェース。
// 配信はベストエフォート：失敗しても照合結果には影響しない。
type Notifier interface {
	NotifyPaymentOutcome(ctx context.Context, memberID string, intent *model.PaymentIntent) error
}

// ReconcileService は ITN 照合エンジンのビジネスロジック
type ReconcileService interface {
	// ProcessNotification authenticates a raw ITN body, reconciles it
	// against expected state and durably records the outcome exactly
	// once. Replays of an already-handled notification return nil.
	ProcessNotification(ctx context.Context, rawBody []byte) error
}

// ReconcileServiceImpl は ReconcileService の実装
type ReconcileServiceImpl struct {
	store      repository.Store
	passphrase string
	feeConfig  fees.Config
	notifier   Notifier // optional, nil = skip
	now        func() time.Time
}

// NewReconcileService は ReconcileServiceImpl を生成する
func NewReconcileService(store repository.Store, passphrase string, feeConfig fees.Config) ReconcileService {
	return &ReconcileServiceImpl{
		store:      store,
		passphrase: passphrase,
		feeConfig:  feeConfig,
		now:        time.Now,
	}
}

// NewReconcileServiceWithNotifier は Notifier 付きの ReconcileServiceImpl を生成する
func NewReconcileServiceWithNotifier(store repository.Store, passphrase string, feeConfig fees.Config, notifier Notifier) ReconcileService {
	return &ReconcileServiceImpl{
		store:      store,
		passphrase: passphrase,
		feeConfig:  feeConfig,
		notifier:   notifier,
		now:        time.Now,
	}
}

// ProcessNotification は ITN を検証・照合し、1 つの DB トランザクション内で
// 台帳・サブスクリプション・ギビングリンクを更新する。
func (s *ReconcileServiceImpl) ProcessNotification(ctx context.Context, rawBody []byte) error {
	// authenticate before touching the database
	if err := payfast.VerifySignature(rawBody, s.passphrase); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	n, err := payfast.ParseNotification(rawBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var outcome *model.PaymentIntent
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		intent, rg, err := s.resolveIntent(ctx, tx, n)
		if err != nil {
			return err
		}

		if n.IsComplete() {
			if err := s.reconcileAmount(intent, n); err != nil {
				return err
			}
		}

		transitioned, err := tx.MarkPaymentIntentTerminal(ctx, intent.ID, terminalStatus(n), n.PFPaymentID)
		if err != nil {
			return fmt.Errorf("mark intent terminal: %w", err)
		}
		if transitioned {
			intent.Status = terminalStatus(n)
		}

		if n.IsComplete() {
			if err := s.writeLedger(ctx, tx, intent, n); err != nil {
				return err
			}
		}

		if intent.RecurringGivingID != "" {
			if err := s.advanceRecurring(ctx, tx, intent, rg, n); err != nil {
				return err
			}
		}

		if n.IsComplete() && intent.GivingLinkID != "" {
			if err := s.trackGivingLink(ctx, tx, intent); err != nil {
				return err
			}
		}

		outcome = intent
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		slog.Info("itn replay ignored", "m_payment_id", n.MPaymentID, "pf_payment_id", n.PFPaymentID)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("itn reconciled",
		"m_payment_id", outcome.MPaymentID,
		"payment_status", n.PaymentStatus,
		"intent_status", outcome.Status,
	)
	s.notifyOutcome(ctx, outcome)
	return nil
}

// resolveIntent finds the matching payment intent, or synthesizes one
// for a recognized recurring cycle that has no local intent yet. A
// notification resolving to nothing is rejected: the engine never
// accepts charges for unknown references.
func (s *ReconcileServiceImpl) resolveIntent(ctx context.Context, tx repository.Store, n *payfast.Notification) (*model.PaymentIntent, *model.RecurringGiving, error) {
	if n.MPaymentID != "" {
		intent, err := tx.GetPaymentIntentByMPaymentID(ctx, n.MPaymentID)
		if err == nil {
			return intent, nil, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("lookup intent: %w", err)
		}
	}

	rg, err := s.lookupRecurring(ctx, tx, n)
	if err != nil {
		return nil, nil, err
	}

	// Only a successful charge creates a cycle intent; a failure or
	// cancellation for a cycle we never issued has nothing to settle.
	if !n.IsComplete() {
		return nil, nil, ErrUnknownReference
	}

	// Duplicate-delivery guard: the first delivery already synthesized
	// an intent and wrote the ledger row for this gateway payment.
	if n.PFPaymentID != "" {
		exists, err := tx.TransactionExistsForProviderPayment(ctx, n.PFPaymentID)
		if err != nil {
			return nil, nil, fmt.Errorf("duplicate guard: %w", err)
		}
		if exists {
			return nil, nil, errAlreadyProcessed
		}
	}

	intent, err := s.synthesizeCycleIntent(ctx, tx, rg, n)
	if err != nil {
		return nil, nil, err
	}
	return intent, rg, nil
}

// lookupRecurring resolves the subscription by gateway token first,
// then by the correlation id echoed back in custom_str1.
func (s *ReconcileServiceImpl) lookupRecurring(ctx context.Context, tx repository.Store, n *payfast.Notification) (*model.RecurringGiving, error) {
	if n.Token != "" {
		rg, err := tx.GetRecurringGivingByToken(ctx, n.Token)
		if err == nil {
			return rg, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup recurring by token: %w", err)
		}
	}
	if n.CustomStr1 != "" {
		rg, err := tx.GetRecurringGivingByID(ctx, n.CustomStr1)
		if err == nil {
			return rg, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup recurring by id: %w", err)
		}
	}
	return nil, ErrUnknownReference
}

// synthesizeCycleIntent creates the PENDING intent for the next cycle
// of a subscription the gateway charged on its own schedule. The
// amount/fee snapshot is copied from the subscription; the gateway
// echoes back only the gross amount, never the breakdown.
func (s *ReconcileServiceImpl) synthesizeCycleIntent(ctx context.Context, tx repository.Store, rg *model.RecurringGiving, n *payfast.Notification) (*model.PaymentIntent, error) {
	cycleNo := rg.CyclesCompleted + 1
	if cycleNo < 1 {
		cycleNo = 1
	}

	mPaymentID := n.MPaymentID
	if mPaymentID == "" {
		mPaymentID = uuid.NewString()
	}

	intent := &model.PaymentIntent{
		ID:                  uuid.NewString(),
		MPaymentID:          mPaymentID,
		ChurchID:            rg.ChurchID,
		FundID:              rg.FundID,
		Amount:              rg.DonationAmount,
		Currency:            "ZAR",
		Status:              model.StatusPending,
		PlatformFeeAmount:   rg.PlatformFeeAmount,
		PlatformFeePct:      s.feeConfig.PctFee,
		PlatformFeeFixed:    s.feeConfig.FixedFee,
		AmountGross:         rg.GrossAmount,
		SuperadminCutAmount: rg.SuperadminCutAmount,
		SuperadminCutPct:    s.feeConfig.SuperadminCutPct,
		RecurringGivingID:   rg.ID,
		RecurringCycleNo:    cycleNo,
		OnBehalfOfMemberID:  rg.MemberID,
	}

	if err := tx.CreatePaymentIntent(ctx, intent); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// a concurrent delivery synthesized this cycle first
			return nil, errAlreadyProcessed
		}
		return nil, fmt.Errorf("synthesize cycle intent: %w", err)
	}
	return intent, nil
}

// reconcileAmount compares the notified gross against the intent's
// snapshot. Amounts are already rounded currency values, so any
// discrepancy at all is a hard rejection.
func (s *ReconcileServiceImpl) reconcileAmount(intent *model.PaymentIntent, n *payfast.Notification) error {
	expected := intent.AmountGross
	if expected.IsZero() {
		// legacy rows without a snapshot: recompute from the base amount
		expected = fees.Calculate(intent.Amount, s.feeConfig).AmountGross
	}
	if !n.AmountGross.Round(2).Equal(expected.Round(2)) {
		return fmt.Errorf("%w: amount mismatch: notified gross %s, expected %s (m_payment_id=%s)",
			ErrValidation, n.AmountGross, expected, intent.MPaymentID)
	}
	return nil
}

// writeLedger inserts the single ledger row for a paid intent. An
// existing row means a replay: backfill the gateway fee if it just
// became known, and stop. The unique constraint on payment_intent_id
// is the backstop when two deliveries race past the existence check.
func (s *ReconcileServiceImpl) writeLedger(ctx context.Context, tx repository.Store, intent *model.PaymentIntent, n *payfast.Notification) error {
	existing, err := tx.GetTransactionByIntentID(ctx, intent.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("lookup ledger row: %w", err)
	}
	if existing != nil {
		if !existing.GatewayFeeAmount.Valid && n.HasGatewayFee() {
			fee := n.GatewayFee()
			churchNet := intent.Amount.Sub(fee)
			if err := tx.BackfillTransactionGatewayFee(ctx, intent.ID, fee, churchNet); err != nil {
				return fmt.Errorf("backfill gateway fee: %w", err)
			}
		}
		return nil
	}

	// the wire carries amount_fee negative; the ledger stores it positive
	fee := n.GatewayFee()
	var gatewayFee decimal.NullDecimal
	if n.HasGatewayFee() {
		gatewayFee = decimal.NewNullDecimal(fee)
	}
	ledger := &model.Transaction{
		PaymentIntentID:     intent.ID,
		Amount:              intent.Amount,
		PlatformFeeAmount:   intent.PlatformFeeAmount,
		GatewayFeeAmount:    gatewayFee,
		ChurchNetAmount:     intent.Amount.Sub(fee),
		AmountGross:         intent.AmountGross,
		SuperadminCutAmount: intent.SuperadminCutAmount,
		Reference:           intent.MPaymentID,
		Channel:             "itn",
		Provider:            "payfast",
		ProviderPaymentID:   n.PFPaymentID,
	}
	if err := tx.InsertTransaction(ctx, ledger); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// lost the insert race to a concurrent delivery
			return nil
		}
		return fmt.Errorf("insert ledger row: %w", err)
	}
	return nil
}

// advanceRecurring applies the charge outcome to the subscription
// state machine and persists the result.
func (s *ReconcileServiceImpl) advanceRecurring(ctx context.Context, tx repository.Store, intent *model.PaymentIntent, rg *model.RecurringGiving, n *payfast.Notification) error {
	if rg == nil {
		var err error
		rg, err = tx.GetRecurringGivingByID(ctx, intent.RecurringGivingID)
		if err != nil {
			return fmt.Errorf("lookup recurring giving: %w", err)
		}
	}

	switch {
	case n.IsComplete():
		cycleNo := intent.RecurringCycleNo
		if cycleNo < 1 {
			cycleNo = 1
		}
		rg.ApplySuccessfulCharge(cycleNo, n.Token, s.now())
	case n.IsCancelled():
		rg.ApplyCancelledCharge(s.now())
	default:
		rg.ApplyFailedCharge()
	}

	if err := tx.UpdateRecurringGiving(ctx, rg); err != nil {
		return fmt.Errorf("update recurring giving: %w", err)
	}
	return nil
}

// trackGivingLink applies one use to the link the paid intent came from.
func (s *ReconcileServiceImpl) trackGivingLink(ctx context.Context, tx repository.Store, intent *model.PaymentIntent) error {
	link, err := tx.GetGivingLinkByID(ctx, intent.GivingLinkID)
	if err != nil {
		return fmt.Errorf("lookup giving link: %w", err)
	}
	link.ApplyUse(intent.ID, s.now())
	if err := tx.UpdateGivingLinkUsage(ctx, link); err != nil {
		return fmt.Errorf("update giving link: %w", err)
	}
	return nil
}

// notifyOutcome は会員へ照合結果を通知する（失敗しても無視）
func (s *ReconcileServiceImpl) notifyOutcome(ctx context.Context, intent *model.PaymentIntent) {
	if s.notifier == nil || intent == nil || intent.OnBehalfOfMemberID == "" {
		return
	}
	if err := s.notifier.NotifyPaymentOutcome(ctx, intent.OnBehalfOfMemberID, intent); err != nil {
		slog.Warn("donor notification failed", "payment_intent_id", intent.ID, "error", err)
	}
}

func terminalStatus(n *payfast.Notification) model.PaymentStatus {
	switch n.PaymentStatus {
	case payfast.StatusComplete:
		return model.StatusPaid
	case payfast.StatusCancelled:
		return model.StatusCancelled
	default:
		return model.StatusFailed
	}
}
