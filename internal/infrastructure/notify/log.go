// Package notify holds the notifier used when no messaging provider is configured.
package notify

import (
	"context"
	"log/slog"

	"github.com/go-redemption-api/internal/domain"
)

// LogNotifier writes each message to the structured log instead of sending it.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg domain.OutboundMessage) error {
	n.logger.InfoContext(ctx, "notification", "phone", msg.Phone, "name", msg.Name, "text", msg.Text, "image", msg.ImageURL)
	return nil
}
