package mail

import (
	"context"
	"log/slog"
)

// Console logs messages instead of delivering them and reports
// ErrNotDelivered, so callers fall back to their degraded path.
type Console struct {
	logger *slog.Logger
}

var _ Sender = (*Console)(nil)

func NewConsole(logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{logger: logger}
}

func (c *Console) Send(ctx context.Context, msg Message) error {
	c.logger.InfoContext(ctx, "email not sent, no provider configured",
		"to", msg.To.Address, "subject", msg.Subject, "body", msg.Text)
	return ErrNotDelivered
}
