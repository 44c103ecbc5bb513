package gateway

import (
	"context"

	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
)

// Repository records processed gateway events. The event id is the
// primary key, so a redelivered event collides instead of applying
// twice.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, event *models.GatewayEvent) error
	Exists(ctx context.Context, eventID string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a gateway event repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, event *models.GatewayEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GatewayEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}
