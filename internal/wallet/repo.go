package wallet

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	"github.com/bazaarly/bazaarly-backend/pkg/pagination"
)

// Repository manages wallet rows and their transaction log. Balance
// mutations are single conditional UPDATE statements so two concurrent
// debits can never both pass a stale balance check.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, wallet *models.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID, kind enums.WalletOwnerKind) (*models.Wallet, error)
	AddBalance(ctx context.Context, walletID uuid.UUID, amountCents int64) (int64, error)
	DeductBalance(ctx context.Context, walletID uuid.UUID, amountCents int64) (int64, error)
	ForceDeductBalance(ctx context.Context, walletID uuid.UUID, amountCents int64) (int64, error)
	CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error
	ListTransactions(ctx context.Context, walletID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.WalletTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) GetByOwner(ctx context.Context, ownerID uuid.UUID, kind enums.WalletOwnerKind) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).
		First(&wallet, "owner_id = ? AND owner_kind = ?", ownerID, kind).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// AddBalance atomically increments the balance and returns the new value.
func (r *repository) AddBalance(ctx context.Context, walletID uuid.UUID, amountCents int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("balance_cents", gorm.Expr("balance_cents + ?", amountCents))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return r.currentBalance(ctx, walletID)
}

// DeductBalance decrements only when the balance covers the amount.
// Returns gorm.ErrRecordNotFound when no row qualified; callers
// distinguish a missing wallet from insufficient funds.
func (r *repository) DeductBalance(ctx context.Context, walletID uuid.UUID, amountCents int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ? AND balance_cents >= ?", walletID, amountCents).
		Update("balance_cents", gorm.Expr("balance_cents - ?", amountCents))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return r.currentBalance(ctx, walletID)
}

// ForceDeductBalance decrements without a balance guard. The result
// may be negative.
func (r *repository) ForceDeductBalance(ctx context.Context, walletID uuid.UUID, amountCents int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("balance_cents", gorm.Expr("balance_cents - ?", amountCents))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return r.currentBalance(ctx, walletID)
}

func (r *repository) currentBalance(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Pluck("balance_cents", &balance).Error
	return balance, err
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.WalletTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var rows []models.WalletTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
