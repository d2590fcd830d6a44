package store

import (
	"context"

	"attendsheets/internal/model"
)

func (t *tx) InsertContactMessage(ctx context.Context, m model.ContactMessage) error {
	_, err := t.exec(ctx, `
		INSERT INTO contact_messages (id, name, email, subject, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.Name, m.Email, m.Subject, m.Message, m.CreatedAt)
	return wrap(err, "insert contact message")
}
