package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
)

// Repository manages subscription boxes and their locked-in items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, box *models.SubscriptionBox) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionBox, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.SubscriptionBox, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.SubscriptionBox, error)
	Update(ctx context.Context, box *models.SubscriptionBox) error
	ReplaceItems(ctx context.Context, boxID uuid.UUID, items []models.SubscriptionItem) error
	SetActive(ctx context.Context, boxID uuid.UUID, active bool) error
	AdvanceNextDelivery(ctx context.Context, boxID uuid.UUID, next time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, box *models.SubscriptionBox) error {
	return r.db.WithContext(ctx).Create(box).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionBox, error) {
	var box models.SubscriptionBox
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&box, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &box, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.SubscriptionBox, error) {
	var rows []models.SubscriptionBox
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.SubscriptionBox, error) {
	var rows []models.SubscriptionBox
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("is_active = ? AND next_delivery_date <= ?", true, now).
		Order("next_delivery_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Update(ctx context.Context, box *models.SubscriptionBox) error {
	return r.db.WithContext(ctx).
		Omit("Items").
		Save(box).Error
}

func (r *repository) ReplaceItems(ctx context.Context, boxID uuid.UUID, items []models.SubscriptionItem) error {
	if err := r.db.WithContext(ctx).
		Where("box_id = ?", boxID).
		Delete(&models.SubscriptionItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) SetActive(ctx context.Context, boxID uuid.UUID, active bool) error {
	return r.db.WithContext(ctx).Model(&models.SubscriptionBox{}).
		Where("id = ?", boxID).
		Update("is_active", active).Error
}

func (r *repository) AdvanceNextDelivery(ctx context.Context, boxID uuid.UUID, next time.Time) error {
	return r.db.WithContext(ctx).Model(&models.SubscriptionBox{}).
		Where("id = ?", boxID).
		Update("next_delivery_date", next).Error
}
