package notifications

import (
	"context"
	"fmt"

	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

// Dispatcher pushes a stored notification to the recipient's device.
// Delivery is best effort: the row is already persisted when Dispatch
// runs, so a push failure loses nothing.
type Dispatcher interface {
	Dispatch(ctx context.Context, notification *models.Notification) error
}

// LogDispatcher stands in for a real push provider. It records what
// would have been sent so local and staging environments stay quiet.
type LogDispatcher struct {
	logg *logger.Logger
}

func NewLogDispatcher(logg *logger.Logger) (*LogDispatcher, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LogDispatcher{logg: logg}, nil
}

func (d *LogDispatcher) Dispatch(ctx context.Context, notification *models.Notification) error {
	ctx = d.logg.WithFields(ctx, map[string]any{
		"recipient_id":   notification.RecipientID.String(),
		"recipient_kind": notification.RecipientKind.String(),
		"type":           notification.Type.String(),
		"title":          notification.Title,
	})
	d.logg.Info(ctx, "push dispatched")
	return nil
}
