package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/bazaarly/bazaarly-backend/pkg/db"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/metrics"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox/payloads"
	"github.com/bazaarly/bazaarly-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OwnerRef identifies a wallet owner. The kind tag keeps user and
// vendor wallets from ever being confused for one another.
type OwnerRef struct {
	ID   uuid.UUID
	Kind enums.WalletOwnerKind
}

// UserOwner builds an OwnerRef for a buyer wallet.
func UserOwner(id uuid.UUID) OwnerRef {
	return OwnerRef{ID: id, Kind: enums.WalletOwnerKindUser}
}

// VendorOwner builds an OwnerRef for a vendor wallet.
func VendorOwner(id uuid.UUID) OwnerRef {
	return OwnerRef{ID: id, Kind: enums.WalletOwnerKindVendor}
}

func (o OwnerRef) validate() error {
	if o.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet owner id is required")
	}
	if !o.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid wallet owner kind %q", o.Kind))
	}
	return nil
}

// MovementInput describes one balance change and its ledger entry.
type MovementInput struct {
	Owner       OwnerRef
	AmountCents int64
	Description string
	Reference   string
	Metadata    json.RawMessage
}

// Service is the wallet ledger. Every balance change writes a paired
// WalletTransaction in the same database transaction.
type Service interface {
	WithTx(tx *gorm.DB) Service
	GetOrCreate(ctx context.Context, owner OwnerRef) (*models.Wallet, error)
	Credit(ctx context.Context, input MovementInput) (*models.WalletTransaction, error)
	Debit(ctx context.Context, input MovementInput) (*models.WalletTransaction, error)
	ForceDebit(ctx context.Context, input MovementInput) (*models.WalletTransaction, error)
	Withdraw(ctx context.Context, owner OwnerRef) (*models.WalletTransaction, error)
	Balance(ctx context.Context, owner OwnerRef) (int64, error)
	ListTransactions(ctx context.Context, owner OwnerRef, params pagination.Params) (pagination.Page[models.WalletTransaction], error)
}

// ServiceParams wires the wallet service dependencies. Tx is only
// needed for operations that open their own transaction, currently
// withdrawals.
type ServiceParams struct {
	Repo    Repository
	Outbox  *outbox.Service
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
	Tx      txRunner
}

type service struct {
	repo    Repository
	outbox  *outbox.Service
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
	txr     txRunner
	tx      *gorm.DB
}

// NewService wires a wallet ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		txr:     params.Tx,
	}, nil
}

// WithTx rebinds the service to a caller-owned transaction so wallet
// movements commit or roll back with the caller's other writes.
func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return s.rebind(tx)
}

func (s *service) rebind(tx *gorm.DB) *service {
	return &service{
		repo:    s.repo.WithTx(tx),
		outbox:  s.outbox,
		metrics: s.metrics,
		logg:    s.logg,
		txr:     s.txr,
		tx:      tx,
	}
}

func (s *service) GetOrCreate(ctx context.Context, owner OwnerRef) (*models.Wallet, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}

	wallet, err := s.repo.GetByOwner(ctx, owner.ID, owner.Kind)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up wallet")
	}

	fresh := &models.Wallet{
		ID:        uuid.New(),
		OwnerID:   owner.ID,
		OwnerKind: owner.Kind,
	}
	if err := s.repo.Create(ctx, fresh); err != nil {
		// Lost a create race: another request made the wallet first.
		if dbpkg.IsUniqueViolation(err, "idx_wallets_owner") {
			existing, getErr := s.repo.GetByOwner(ctx, owner.ID, owner.Kind)
			if getErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, getErr, "refetching wallet after create race")
			}
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating wallet")
	}
	return fresh, nil
}

func (s *service) Credit(ctx context.Context, input MovementInput) (*models.WalletTransaction, error) {
	if err := validateMovement(input); err != nil {
		return nil, err
	}

	wallet, err := s.GetOrCreate(ctx, input.Owner)
	if err != nil {
		return nil, err
	}

	balance, err := s.repo.AddBalance(ctx, wallet.ID, input.AmountCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "crediting wallet")
	}

	txn, err := s.recordTransaction(ctx, wallet.ID, enums.WalletTransactionKindCredit, input, balance)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveMovement(enums.WalletTransactionKindCredit.String(), input.AmountCents)
	return txn, nil
}

func (s *service) Debit(ctx context.Context, input MovementInput) (*models.WalletTransaction, error) {
	if err := validateMovement(input); err != nil {
		return nil, err
	}

	wallet, err := s.repo.GetByOwner(ctx, input.Owner.ID, input.Owner.Kind)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up wallet")
	}

	balance, err := s.repo.DeductBalance(ctx, wallet.ID, input.AmountCents)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance below debit amount").
				WithDetails(map[string]any{"wallet_id": wallet.ID, "amount_cents": input.AmountCents})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debiting wallet")
	}

	txn, err := s.recordTransaction(ctx, wallet.ID, enums.WalletTransactionKindDebit, input, balance)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveMovement(enums.WalletTransactionKindDebit.String(), input.AmountCents)
	return txn, nil
}

// ForceDebit withdraws even when the balance cannot cover the amount.
// Only reversal flows use it; an overdraw is recorded loudly and
// flagged for operators rather than blocking the caller's refund.
func (s *service) ForceDebit(ctx context.Context, input MovementInput) (*models.WalletTransaction, error) {
	if err := validateMovement(input); err != nil {
		return nil, err
	}

	wallet, err := s.repo.GetByOwner(ctx, input.Owner.ID, input.Owner.Kind)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up wallet")
	}

	balance, err := s.repo.ForceDeductBalance(ctx, wallet.ID, input.AmountCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "force debiting wallet")
	}

	txn, err := s.recordTransaction(ctx, wallet.ID, enums.WalletTransactionKindDebit, input, balance)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveMovement(enums.WalletTransactionKindDebit.String(), input.AmountCents)

	if balance < 0 {
		s.flagShortfall(ctx, wallet, input, balance)
	}
	return txn, nil
}

// Withdraw drains the owner's full balance and records the matching
// debit. The payout transfer itself runs downstream, picked up from
// the withdrawal event.
func (s *service) Withdraw(ctx context.Context, owner OwnerRef) (*models.WalletTransaction, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	if s.tx == nil && s.txr != nil {
		var txn *models.WalletTransaction
		err := s.txr.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			txn, err = s.rebind(tx).withdraw(ctx, owner)
			return err
		})
		if err != nil {
			return nil, err
		}
		return txn, nil
	}
	return s.withdraw(ctx, owner)
}

func (s *service) withdraw(ctx context.Context, owner OwnerRef) (*models.WalletTransaction, error) {
	walletRow, err := s.repo.GetByOwner(ctx, owner.ID, owner.Kind)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up wallet")
	}

	amount := walletRow.BalanceCents
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "no balance to withdraw")
	}

	balance, err := s.repo.DeductBalance(ctx, walletRow.ID, amount)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// A concurrent spend moved the balance under us; the
			// conditional deduct refused rather than overdraw.
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance changed, retry the withdrawal")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "withdrawing from wallet")
	}

	input := MovementInput{Owner: owner, AmountCents: amount, Description: "wallet withdrawal"}
	txn, err := s.recordTransaction(ctx, walletRow.ID, enums.WalletTransactionKindDebit, input, balance)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveMovement(enums.WalletTransactionKindDebit.String(), amount)
	s.emitWithdrawal(ctx, walletRow, amount)
	return txn, nil
}

func (s *service) emitWithdrawal(ctx context.Context, wallet *models.Wallet, amount int64) {
	if s.outbox == nil || s.tx == nil {
		return
	}
	err := s.outbox.Emit(ctx, s.tx, outbox.DomainEvent{
		EventType:     enums.EventWalletWithdrawal,
		AggregateType: enums.AggregateWallet,
		AggregateID:   wallet.ID.String(),
		Data: payloads.WalletWithdrawalRequested{
			WalletID:    wallet.ID,
			OwnerID:     wallet.OwnerID,
			OwnerKind:   wallet.OwnerKind.String(),
			AmountCents: amount,
		},
	})
	if err != nil {
		s.logg.Error(ctx, "emitting withdrawal requested event", err)
	}
}

func (s *service) flagShortfall(ctx context.Context, wallet *models.Wallet, input MovementInput, balance int64) {
	s.metrics.IncShortfall()

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"wallet_id":     wallet.ID.String(),
		"owner_id":      wallet.OwnerID.String(),
		"owner_kind":    wallet.OwnerKind,
		"balance_cents": balance,
		"reference":     input.Reference,
	})
	s.logg.Error(logCtx, "forced debit overdrew wallet", pkgerrors.New(pkgerrors.CodeLedgerIntegrity, "wallet balance went negative"))

	if s.outbox == nil || s.tx == nil {
		return
	}
	err := s.outbox.Emit(ctx, s.tx, outbox.DomainEvent{
		EventType:     enums.EventLedgerShortfall,
		AggregateType: enums.AggregateWallet,
		AggregateID:   wallet.ID.String(),
		Data: payloads.LedgerShortfall{
			WalletID:     wallet.ID,
			OwnerID:      wallet.OwnerID,
			OwnerKind:    wallet.OwnerKind.String(),
			AmountCents:  input.AmountCents,
			BalanceCents: balance,
			Reference:    input.Reference,
		},
	})
	if err != nil {
		s.logg.Error(ctx, "emitting shortfall event", err)
	}
}

func (s *service) Balance(ctx context.Context, owner OwnerRef) (int64, error) {
	if err := owner.validate(); err != nil {
		return 0, err
	}
	wallet, err := s.repo.GetByOwner(ctx, owner.ID, owner.Kind)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up wallet")
	}
	return wallet.BalanceCents, nil
}

func (s *service) ListTransactions(ctx context.Context, owner OwnerRef, params pagination.Params) (pagination.Page[models.WalletTransaction], error) {
	var empty pagination.Page[models.WalletTransaction]
	if err := owner.validate(); err != nil {
		return empty, err
	}
	wallet, err := s.repo.GetByOwner(ctx, owner.ID, owner.Kind)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return empty, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return empty, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up wallet")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return empty, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListTransactions(ctx, wallet.ID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return empty, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing wallet transactions")
	}

	return pagination.BuildPage(rows, params.Limit, func(t models.WalletTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	}), nil
}

func (s *service) recordTransaction(ctx context.Context, walletID uuid.UUID, kind enums.WalletTransactionKind, input MovementInput, balanceAfter int64) (*models.WalletTransaction, error) {
	txn := &models.WalletTransaction{
		ID:                uuid.New(),
		WalletID:          walletID,
		Kind:              kind,
		AmountCents:       input.AmountCents,
		BalanceAfterCents: balanceAfter,
		Description:       input.Description,
		Metadata:          input.Metadata,
	}
	if input.Reference != "" {
		ref := input.Reference
		txn.Reference = &ref
	}
	if err := s.repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording wallet transaction")
	}
	return txn, nil
}

func validateMovement(input MovementInput) error {
	if err := input.Owner.validate(); err != nil {
		return err
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.Description == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}
	return nil
}
