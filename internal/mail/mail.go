// Package mail delivers transactional email.
package mail

import (
	"context"
	"errors"
	"net/mail"
)

// ErrNotDelivered is returned by senders that only log messages.
var ErrNotDelivered = errors.New("mail: message was not delivered")

// Message is a rendered email.
type Message struct {
	To      mail.Address
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
