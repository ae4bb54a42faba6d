package worker

import (
	"context"
	"fmt"

	"findash/internal/core"
	"findash/internal/log"
)

type Notifier interface {
	Notify(ctx context.Context, a core.Alert) error
}

// AlertRelay delivers alerts taken off the queue. Returning an error lets
// the consumer requeue the message.
type AlertRelay struct {
	notifier Notifier
	logger   *log.Logger
}

func NewAlertRelay(n Notifier, logger *log.Logger) *AlertRelay {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentNotify})
	}
	return &AlertRelay{notifier: n, logger: logger.WithComponent(log.ComponentNotify)}
}

// HandleAlert matches amqp.AlertHandler.
func (r *AlertRelay) HandleAlert(ctx context.Context, a core.Alert) error {
	r.logger.InfoContext(ctx, "Processing alert message",
		log.FieldEventID, a.ID, log.FieldStockCode, a.Code)
	if err := r.notifier.Notify(ctx, a); err != nil {
		return fmt.Errorf("deliver alert %s: %w", a.ID, err)
	}
	r.logger.InfoContext(ctx, "Alert delivered", log.FieldEventID, a.ID)
	return nil
}
