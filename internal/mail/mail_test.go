package mail

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationRendersCode(t *testing.T) {
	msg, err := Verification(mail.Address{Name: "Ada <script>", Address: "ada@example.com"}, "123456", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", msg.To.Address)
	assert.Contains(t, msg.Subject, "Verify")
	assert.Contains(t, msg.Text, "123456")
	assert.Contains(t, msg.Text, "15 minutes")
	assert.Contains(t, msg.HTML, "123456")
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestPasswordResetAndContact(t *testing.T) {
	msg, err := PasswordReset(mail.Address{Name: "Ada", Address: "ada@example.com"}, "654321", 10*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "654321")
	assert.Contains(t, msg.Text, "10 minutes")

	msg, err = ContactNotification("support@example.com", "Bob", "bob@example.com", "Help", "Cannot log in")
	require.NoError(t, err)
	assert.Equal(t, "support@example.com", msg.To.Address)
	assert.Equal(t, "[Contact] Help", msg.Subject)
	assert.Contains(t, msg.Text, "Cannot log in")
}

func TestConsoleReportsNotDelivered(t *testing.T) {
	err := NewConsole(nil).Send(context.Background(), Message{To: mail.Address{Address: "a@example.com"}})
	assert.ErrorIs(t, err, ErrNotDelivered)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_, ok := r.Last()
	assert.False(t, ok)

	require.NoError(t, r.Send(context.Background(), Message{Subject: "one"}))
	r.Fail = errors.New("smtp down")
	assert.Error(t, r.Send(context.Background(), Message{Subject: "two"}))

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, "two", last.Subject)
	assert.Len(t, r.Sent(), 2)
}

func TestSendGridPrepare(t *testing.T) {
	s := NewSendGrid("key", "Lernova Attendsheets", "noreply@example.com")
	m := s.prepare(Message{To: mail.Address{Name: "Ada", Address: "ada@example.com"}, Subject: "Hi", Text: "plain", HTML: "<p>html</p>"})
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "Hi", m.Personalizations[0].Subject)
	assert.Equal(t, "ada@example.com", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "noreply@example.com", m.From.Address)
	assert.Len(t, m.Content, 2)
}

func withSendGridHost(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	prev := sendgridHost
	sendgridHost = srv.URL
	t.Cleanup(func() {
		sendgridHost = prev
		srv.Close()
	})
}

func TestSendGridSend(t *testing.T) {
	var auth, path string
	withSendGridHost(t, func(w http.ResponseWriter, r *http.Request) {
		auth, path = r.Header.Get("Authorization"), r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	})

	s := NewSendGrid("key", "Lernova Attendsheets", "noreply@example.com")
	err := s.Send(context.Background(), Message{To: mail.Address{Address: "ada@example.com"}, Subject: "Hi", Text: "plain"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer key", auth)
	assert.Equal(t, "/v3/mail/send", path)
}

func TestSendGridSendStopsAtDeadline(t *testing.T) {
	release := make(chan struct{})
	withSendGridHost(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := NewSendGrid("key", "", "noreply@example.com").Send(ctx, Message{To: mail.Address{Address: "ada@example.com"}, Text: "plain"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
