// Package contact stores support submissions and forwards them to the
// support inbox.
package contact

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"attendsheets/internal/apperr"
	"attendsheets/internal/mail"
	"attendsheets/internal/metrics"
	"attendsheets/internal/model"
	"attendsheets/internal/store"
)

// Input is a contact form submission.
type Input struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Subject string `json:"subject" binding:"required"`
	Message string `json:"message" binding:"required"`
}

type Service struct {
	store  store.Store
	mail   mail.Sender
	inbox  string
	now    func() time.Time
	logger *slog.Logger
}

// NewService returns a Service. An empty inbox disables forwarding.
func NewService(st store.Store, sender mail.Sender, inbox string, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, mail: sender, inbox: strings.TrimSpace(inbox), now: now, logger: logger}
}

// Submit persists the message. Forwarding failures are logged only.
func (s *Service) Submit(ctx context.Context, in Input) (model.ContactMessage, error) {
	msg := model.ContactMessage{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Subject:   strings.TrimSpace(in.Subject),
		Message:   strings.TrimSpace(in.Message),
		CreatedAt: s.now().UTC(),
	}
	if msg.Name == "" || msg.Email == "" || msg.Subject == "" || msg.Message == "" {
		return model.ContactMessage{}, apperr.Validation("All fields are required")
	}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertContactMessage(ctx, msg)
	})
	if err != nil {
		return model.ContactMessage{}, apperr.Internal(err, "Failed to process contact form")
	}
	s.logger.InfoContext(ctx, "contact message stored", "id", msg.ID, "subject", msg.Subject)

	if s.inbox != "" && s.mail != nil {
		s.forward(ctx, msg)
	}
	return msg, nil
}

func (s *Service) forward(ctx context.Context, msg model.ContactMessage) {
	notice, err := mail.ContactNotification(s.inbox, msg.Name, msg.Email, msg.Subject, msg.Message)
	if err == nil {
		err = s.mail.Send(ctx, notice)
	}
	if err != nil {
		metrics.MailFailures.WithLabelValues("contact").Inc()
		s.logger.WarnContext(ctx, "contact notification not delivered", "id", msg.ID, "err", err)
	}
}
