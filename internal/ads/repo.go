package ads

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	"github.com/bazaarly/bazaarly-backend/pkg/pagination"
)

// Repository manages ads, clicks and ad billing records. Budget
// mutation is a single conditional UPDATE: two concurrent clicks can
// never both pass the budget check on a stale read.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, ad *models.Ad) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ad, error)
	Save(ctx context.Context, ad *models.Ad) error
	ListByVendor(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Ad, error)
	ListTop(ctx context.Context, limit int) ([]models.Ad, error)
	HasActiveForProduct(ctx context.Context, productID uuid.UUID, excludeAdID uuid.UUID) (bool, error)
	DeductBudgetForClick(ctx context.Context, adID uuid.UUID, costCents int64) (int64, error)
	AddBudget(ctx context.Context, adID uuid.UUID, amountCents int64) (int64, error)
	SetStatus(ctx context.Context, adID uuid.UUID, status enums.AdStatus) error
	IncrementViews(ctx context.Context, adID uuid.UUID) error
	CreateClick(ctx context.Context, click *models.AdClick) error
	GetClick(ctx context.Context, id uuid.UUID) (*models.AdClick, error)
	CreateTransaction(ctx context.Context, txn *models.AdTransaction) error
	SpendCents(ctx context.Context, adID uuid.UUID) (int64, error)
	ActiveBidStats(ctx context.Context) (*BidStats, error)
}

// BidStats summarizes cost-per-click across active ads.
type BidStats struct {
	Count    int64
	MinCents int64
	MaxCents int64
	SumCents int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an ads repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, ad *models.Ad) error {
	return r.db.WithContext(ctx).Create(ad).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ad, error) {
	var ad models.Ad
	if err := r.db.WithContext(ctx).First(&ad, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ad, nil
}

func (r *repository) Save(ctx context.Context, ad *models.Ad) error {
	return r.db.WithContext(ctx).Save(ad).Error
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Ad, error) {
	query := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var rows []models.Ad
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListTop(ctx context.Context, limit int) ([]models.Ad, error) {
	var rows []models.Ad
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.AdStatusActive).
		Order("clicks DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) HasActiveForProduct(ctx context.Context, productID uuid.UUID, excludeAdID uuid.UUID) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Ad{}).
		Where("product_id = ? AND status = ?", productID, enums.AdStatusActive)
	if excludeAdID != uuid.Nil {
		query = query.Where("id <> ?", excludeAdID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeductBudgetForClick bills one click: the guard keeps the decrement
// from running on an inactive ad or past the remaining budget.
// Returns gorm.ErrRecordNotFound when no row qualified.
func (r *repository) DeductBudgetForClick(ctx context.Context, adID uuid.UUID, costCents int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Ad{}).
		Where("id = ? AND status = ? AND budget_cents >= ?", adID, enums.AdStatusActive, costCents).
		Updates(map[string]any{
			"budget_cents": gorm.Expr("budget_cents - ?", costCents),
			"clicks":       gorm.Expr("clicks + 1"),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return r.remainingBudget(ctx, adID)
}

func (r *repository) AddBudget(ctx context.Context, adID uuid.UUID, amountCents int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Ad{}).
		Where("id = ?", adID).
		Updates(map[string]any{
			"budget_cents":       gorm.Expr("budget_cents + ?", amountCents),
			"total_budget_cents": gorm.Expr("total_budget_cents + ?", amountCents),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return r.remainingBudget(ctx, adID)
}

func (r *repository) remainingBudget(ctx context.Context, adID uuid.UUID) (int64, error) {
	var budget int64
	err := r.db.WithContext(ctx).Model(&models.Ad{}).
		Where("id = ?", adID).
		Pluck("budget_cents", &budget).Error
	return budget, err
}

func (r *repository) SetStatus(ctx context.Context, adID uuid.UUID, status enums.AdStatus) error {
	return r.db.WithContext(ctx).Model(&models.Ad{}).
		Where("id = ?", adID).
		Update("status", status).Error
}

func (r *repository) IncrementViews(ctx context.Context, adID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Ad{}).
		Where("id = ?", adID).
		Update("views", gorm.Expr("views + 1")).Error
}

func (r *repository) CreateClick(ctx context.Context, click *models.AdClick) error {
	return r.db.WithContext(ctx).Create(click).Error
}

func (r *repository) GetClick(ctx context.Context, id uuid.UUID) (*models.AdClick, error) {
	var click models.AdClick
	if err := r.db.WithContext(ctx).First(&click, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &click, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.AdTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) SpendCents(ctx context.Context, adID uuid.UUID) (int64, error) {
	var spend int64
	err := r.db.WithContext(ctx).Model(&models.AdTransaction{}).
		Where("ad_id = ?", adID).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&spend).Error
	return spend, err
}

func (r *repository) ActiveBidStats(ctx context.Context) (*BidStats, error) {
	var stats BidStats
	err := r.db.WithContext(ctx).Model(&models.Ad{}).
		Where("status = ?", enums.AdStatusActive).
		Select("COUNT(*) AS count, COALESCE(MIN(cost_per_click_cents), 0) AS min_cents, COALESCE(MAX(cost_per_click_cents), 0) AS max_cents, COALESCE(SUM(cost_per_click_cents), 0) AS sum_cents").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
