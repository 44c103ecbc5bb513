package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	"github.com/bazaarly/bazaarly-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupWalletTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	wallets := `
CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  owner_kind TEXT NOT NULL,
  balance_cents INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (owner_id, owner_kind)
);`
	transactions := `
CREATE TABLE IF NOT EXISTS wallet_transactions (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  balance_after_cents INTEGER NOT NULL,
  description TEXT NOT NULL,
  reference TEXT,
  metadata TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(wallets).Error)
	require.NoError(t, db.Exec(transactions).Error)
	return db
}

func newWallet(t *testing.T, db *gorm.DB, balance int64) *models.Wallet {
	t.Helper()

	wallet := &models.Wallet{
		ID:           uuid.New(),
		OwnerID:      uuid.New(),
		OwnerKind:    enums.WalletOwnerKindUser,
		BalanceCents: balance,
	}
	require.NoError(t, db.Create(wallet).Error)
	return wallet
}

func TestRepositoryGetByOwner(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	wallet := newWallet(t, db, 1000)

	got, err := repo.GetByOwner(ctx, wallet.OwnerID, wallet.OwnerKind)
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, got.ID)
	assert.Equal(t, int64(1000), got.BalanceCents)

	_, err = repo.GetByOwner(ctx, uuid.New(), enums.WalletOwnerKindUser)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryAddBalance(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	wallet := newWallet(t, db, 250)

	balance, err := repo.AddBalance(ctx, wallet.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(750), balance)

	_, err = repo.AddBalance(ctx, uuid.New(), 500)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryDeductBalanceGuardsAgainstOverdraft(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	wallet := newWallet(t, db, 300)

	balance, err := repo.DeductBalance(ctx, wallet.ID, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	_, err = repo.DeductBalance(ctx, wallet.ID, 200)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	got, err := repo.GetByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.BalanceCents, "failed deduct must not touch the balance")
}

func TestRepositoryForceDeductCanGoNegative(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	wallet := newWallet(t, db, 100)

	balance, err := repo.ForceDeductBalance(ctx, wallet.ID, 400)
	require.NoError(t, err)
	assert.Equal(t, int64(-300), balance)
}

func TestRepositoryListTransactionsPagination(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	wallet := newWallet(t, db, 0)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		txn := &models.WalletTransaction{
			ID:                uuid.New(),
			WalletID:          wallet.ID,
			Kind:              enums.WalletTransactionKindCredit,
			AmountCents:       int64(100 * (i + 1)),
			BalanceAfterCents: int64(100 * (i + 1)),
			Description:       "top up",
			CreatedAt:         base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(txn).Error)
	}

	first, err := repo.ListTransactions(ctx, wallet.ID, nil, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.True(t, first[0].CreatedAt.After(first[1].CreatedAt), "newest first")

	cursor := &pagination.Cursor{CreatedAt: first[2].CreatedAt, ID: first[2].ID}
	rest, err := repo.ListTransactions(ctx, wallet.ID, cursor, 3)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(100), rest[0].AmountCents)
}
