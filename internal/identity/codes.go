package identity

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	pkgerrors "github.com/pkg/errors"

	"attendsheets/internal/kv"
	"attendsheets/internal/model"
)

const (
	signupPrefix = "signup:"
	resetPrefix  = "reset:"

	// entries outlive their expiry a little so callers get "expired"
	// rather than "not found"
	expiredGrace = time.Minute
)

// pendingCode is what the expiring store holds per email.
type pendingCode struct {
	Code         string     `json:"code"`
	Name         string     `json:"name,omitempty"`
	PasswordHash string     `json:"password_hash,omitempty"`
	Role         model.Role `json:"role,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

func (p pendingCode) expired(now time.Time) bool { return now.After(p.ExpiresAt) }

// NewCode returns a uniformly random 6 digit code.
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (s *Service) putCode(ctx context.Context, key string, p pendingCode, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return pkgerrors.Wrap(err, "encode pending code")
	}
	return pkgerrors.Wrap(s.codes.Put(ctx, key, raw, ttl+expiredGrace), "store pending code")
}

// getCode returns ok=false when no entry exists.
func (s *Service) getCode(ctx context.Context, key string) (pendingCode, bool, error) {
	raw, err := s.codes.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return pendingCode{}, false, nil
	}
	if err != nil {
		return pendingCode{}, false, pkgerrors.Wrap(err, "load pending code")
	}
	var p pendingCode
	if err := json.Unmarshal(raw, &p); err != nil {
		return pendingCode{}, false, pkgerrors.Wrap(err, "decode pending code")
	}
	return p, true, nil
}
