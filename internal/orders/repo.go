package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	"github.com/bazaarly/bazaarly-backend/pkg/pagination"
)

// Repository manages vendor order rows and their line items. Sibling
// rows from one checkout share a group id and are usually read
// together.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAll(ctx context.Context, orders []*models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	SetStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
	SetPaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) error
	MarkGroupPaid(ctx context.Context, groupID string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateAll(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(orders).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByGroup(ctx context.Context, groupID string) ([]models.Order, error) {
	var rows []models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	return r.list(ctx, "user_id = ?", userID, cursor, limit)
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	return r.list(ctx, "vendor_id = ?", vendorID, cursor, limit)
}

func (r *repository) list(ctx context.Context, cond string, arg any, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where(cond, arg).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var rows []models.Order
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SetStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
}

func (r *repository) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("payment_status", status).Error
}

// MarkGroupPaid settles every still-unpaid sibling in one statement
// and reports how many rows it flipped.
func (r *repository) MarkGroupPaid(ctx context.Context, groupID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("group_id = ? AND payment_status = ?", groupID, enums.PaymentStatusUnpaid).
		Update("payment_status", enums.PaymentStatusPaid)
	return res.RowsAffected, res.Error
}
