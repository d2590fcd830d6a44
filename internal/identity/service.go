// Package identity manages teacher and student accounts: signup with emailed
// verification codes, login, profile changes, password resets and deletion.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"attendsheets/internal/apperr"
	"attendsheets/internal/auth"
	"attendsheets/internal/kv"
	mailer "attendsheets/internal/mail"
	"attendsheets/internal/metrics"
	"attendsheets/internal/model"
	"attendsheets/internal/store"
)

// Config tunes lifetimes. Zero values fall back to the defaults below.
type Config struct {
	SessionTTL    time.Duration
	SignupCodeTTL time.Duration
	ResetCodeTTL  time.Duration
	Now           func() time.Time
}

const (
	defaultSessionTTL    = 7 * 24 * time.Hour
	defaultSignupCodeTTL = 15 * time.Minute
	defaultResetCodeTTL  = 10 * time.Minute

	codeSentMessage    = "Verification code sent to your email"
	resetSentMessage   = "If the email exists, a reset code has been sent"
	passwordSetMessage = "Password updated successfully"
)

// User is the public view of an account.
type User struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Role  model.Role `json:"-"`
}

// Session is returned by a successful verification or login.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"-"`
	User        User      `json:"user"`
}

type Service struct {
	store   store.Store
	codes   kv.ExpiringStore
	mail    mailer.Sender
	tokens  *auth.Issuer
	cfg     Config
	logger  *slog.Logger
	newCode func() (string, error)
}

func NewService(st store.Store, codes kv.ExpiringStore, sender mailer.Sender, tokens *auth.Issuer, cfg Config, logger *slog.Logger) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.SignupCodeTTL <= 0 {
		cfg.SignupCodeTTL = defaultSignupCodeTTL
	}
	if cfg.ResetCodeTTL <= 0 {
		cfg.ResetCodeTTL = defaultResetCodeTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, codes: codes, mail: sender, tokens: tokens, cfg: cfg, logger: logger, newCode: NewCode}
}

// NormalizeEmail lowercases and trims an address for lookups and keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) now() time.Time { return s.cfg.Now().UTC() }

// account is a teacher or student row reduced to what this package needs.
type account struct {
	id, email, name, hash string
	role                  model.Role
}

func (a account) user() User { return User{ID: a.id, Email: a.email, Name: a.name, Role: a.role} }

// lookup loads the account of email for role, returning store.ErrNotFound when absent.
func lookup(ctx context.Context, tx store.Tx, role model.Role, email string) (account, error) {
	switch role {
	case model.RoleTeacher:
		t, err := tx.TeacherByEmail(ctx, email)
		if err != nil {
			return account{}, err
		}
		return account{id: t.ID, email: t.Email, name: t.Name, hash: t.PasswordHash, role: role}, nil
	case model.RoleStudent:
		st, err := tx.StudentByEmail(ctx, email)
		if err != nil {
			return account{}, err
		}
		return account{id: st.ID, email: st.Email, name: st.Name, hash: st.PasswordHash, role: role}, nil
	}
	return account{}, store.ErrNotFound
}

func exists(ctx context.Context, tx store.Tx, role model.Role, email string) (bool, error) {
	_, err := lookup(ctx, tx, role, email)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Signup checks the email is free, stores a pending signup and emails the
// code. When the email cannot be delivered the code is returned in the message.
func (s *Service) Signup(ctx context.Context, role model.Role, name, email, password string) (string, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if !role.Valid() {
		return "", apperr.Validation("Unknown account role")
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		taken, err := exists(ctx, tx, role, email)
		if err != nil {
			return err
		}
		if taken {
			if role == model.RoleStudent {
				return apperr.Conflict("Student with this email already exists")
			}
			return apperr.Conflict("User with this email already exists")
		}
		if role == model.RoleStudent {
			teacher, err := exists(ctx, tx, model.RoleTeacher, email)
			if err != nil {
				return err
			}
			if teacher {
				return apperr.Conflict("This email is already registered as a teacher")
			}
		}
		return nil
	})
	if err != nil {
		return "", s.internal(err, "Signup failed")
	}
	if len(password) < auth.MinPasswordLength {
		return "", apperr.Validation("Password must be at least %d characters long", auth.MinPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", apperr.Internal(err, "Signup failed")
	}
	msg, err := s.issueSignupCode(ctx, pendingCode{Name: name, PasswordHash: hash, Role: role}, email)
	if err != nil {
		return "", err
	}
	metrics.Signups.WithLabelValues(string(role), "code_sent").Inc()
	return msg, nil
}

// ResendVerification replaces the code of a pending signup.
func (s *Service) ResendVerification(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	p, ok, err := s.getCode(ctx, signupPrefix+email)
	if err != nil {
		return "", apperr.Internal(err, "Failed to resend verification code")
	}
	if !ok {
		return "", apperr.NotFound("No pending signup found for this email")
	}
	return s.issueSignupCode(ctx, p, email)
}

func (s *Service) issueSignupCode(ctx context.Context, p pendingCode, email string) (string, error) {
	code, err := s.newCode()
	if err != nil {
		return "", apperr.Internal(err, "Failed to generate verification code")
	}
	p.Code = code
	p.ExpiresAt = s.now().Add(s.cfg.SignupCodeTTL)
	if err := s.putCode(ctx, signupPrefix+email, p, s.cfg.SignupCodeTTL); err != nil {
		return "", apperr.Internal(err, "Failed to store verification code")
	}

	msg, err := mailer.Verification(mail.Address{Name: p.Name, Address: email}, code, s.cfg.SignupCodeTTL)
	if err == nil {
		err = s.mail.Send(ctx, msg)
	}
	if err != nil {
		metrics.MailFailures.WithLabelValues("verification").Inc()
		s.logger.WarnContext(ctx, "verification email not delivered", "email", email, "err", err)
		return "Code: " + code, nil
	}
	return codeSentMessage, nil
}

// VerifyEmail consumes a signup code and creates the account. When required
// is set the pending signup must be for that role.
func (s *Service) VerifyEmail(ctx context.Context, email, code string, required model.Role) (Session, error) {
	email = NormalizeEmail(email)
	key := signupPrefix + email
	p, ok, err := s.getCode(ctx, key)
	if err != nil {
		return Session{}, apperr.Internal(err, "Verification failed")
	}
	if !ok {
		return Session{}, apperr.Validation("No verification code found")
	}
	if required != "" && p.Role != required {
		return Session{}, apperr.Validation("Invalid verification attempt")
	}
	if p.expired(s.now()) {
		s.dropCode(ctx, key)
		return Session{}, apperr.Validation("Verification code expired")
	}
	if strings.TrimSpace(code) != p.Code {
		return Session{}, apperr.Validation("Invalid verification code")
	}

	now := s.now()
	acc := account{id: uuid.NewString(), email: email, name: p.Name, hash: p.PasswordHash, role: p.Role}
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if p.Role == model.RoleTeacher {
			return tx.InsertTeacher(ctx, model.Teacher{
				ID: acc.id, Email: email, Name: p.Name, PasswordHash: p.PasswordHash, CreatedAt: now, UpdatedAt: now,
			})
		}
		return tx.InsertStudent(ctx, model.Student{
			ID: acc.id, Email: email, Name: p.Name, PasswordHash: p.PasswordHash, CreatedAt: now, UpdatedAt: now,
		})
	})
	if errors.Is(err, store.ErrConflict) {
		return Session{}, apperr.Conflict("User with this email already exists")
	}
	if err != nil {
		return Session{}, apperr.Internal(err, "Failed to create account")
	}
	s.dropCode(ctx, key)
	metrics.Signups.WithLabelValues(string(p.Role), "verified").Inc()
	s.logger.InfoContext(ctx, "account created", "role", p.Role, "user_id", acc.id)
	return s.session(acc)
}

// Login tries each role in order and returns a session for the first account
// whose password matches.
func (s *Service) Login(ctx context.Context, email, password string, roles ...model.Role) (Session, error) {
	email = NormalizeEmail(email)
	var found *account
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		for _, role := range roles {
			acc, err := lookup(ctx, tx, role, email)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if auth.CheckPassword(acc.hash, password) {
				found = &acc
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return Session{}, apperr.Internal(err, "Login failed")
	}
	if found == nil {
		metrics.Logins.WithLabelValues("failed").Inc()
		return Session{}, apperr.Unauthorized("Invalid email or password")
	}
	metrics.Logins.WithLabelValues(string(found.role)).Inc()
	return s.session(*found)
}

func (s *Service) session(acc account) (Session, error) {
	token, exp, err := s.tokens.Issue(acc.email, acc.role, s.cfg.SessionTTL)
	if err != nil {
		return Session{}, apperr.Internal(err, "Failed to issue token")
	}
	return Session{AccessToken: token, ExpiresAt: exp, User: acc.user()}, nil
}

// Me returns the account behind an identity.
func (s *Service) Me(ctx context.Context, id auth.Identity) (User, error) {
	var u User
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		acc, err := lookup(ctx, tx, id.Role, id.Email)
		if err != nil {
			return err
		}
		u = acc.user()
		return nil
	})
	return u, s.accountErr(err, id.Role)
}

// UpdateProfile renames the caller.
func (s *Service) UpdateProfile(ctx context.Context, id auth.Identity, name string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, apperr.Validation("Name is required")
	}
	var u User
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		acc, err := lookup(ctx, tx, id.Role, id.Email)
		if err != nil {
			return err
		}
		if acc.role == model.RoleTeacher {
			err = tx.RenameTeacher(ctx, acc.id, name, s.now())
		} else {
			err = tx.RenameStudent(ctx, acc.id, name, s.now())
		}
		if err != nil {
			return err
		}
		acc.name = name
		u = acc.user()
		return nil
	})
	return u, s.accountErr(err, id.Role)
}

// DeleteAccount removes the caller. Teacher deletion cascades to owned
// classes; student deletion drops enrollments and recounts the totals of
// every affected teacher.
func (s *Service) DeleteAccount(ctx context.Context, id auth.Identity) error {
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		acc, err := lookup(ctx, tx, id.Role, id.Email)
		if err != nil {
			return err
		}
		if acc.role == model.RoleTeacher {
			return tx.DeleteTeacher(ctx, acc.id)
		}
		teachers, err := tx.TeachersOfStudent(ctx, acc.id)
		if err != nil {
			return err
		}
		if err := tx.DeleteStudent(ctx, acc.id); err != nil {
			return err
		}
		for _, teacherID := range teachers {
			if err := store.RecomputeTeacherTotals(ctx, tx, teacherID); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		s.logger.InfoContext(ctx, "account deleted", "role", id.Role, "email", id.Email)
	}
	return s.accountErr(err, id.Role)
}

// Logout has no server-side state to clear.
func (s *Service) Logout(ctx context.Context, id auth.Identity) {
	s.logger.DebugContext(ctx, "logout", "role", id.Role, "email", id.Email)
}

// RequestPasswordReset emails a reset code when an account exists. The answer
// never reveals whether it does.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	var acc *account
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		for _, role := range []model.Role{model.RoleTeacher, model.RoleStudent} {
			a, err := lookup(ctx, tx, role, email)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			acc = &a
			return nil
		}
		return nil
	})
	if err != nil {
		return "", apperr.Internal(err, "Failed to request password reset")
	}
	if acc == nil {
		return resetSentMessage, nil
	}

	code, err := s.newCode()
	if err != nil {
		return "", apperr.Internal(err, "Failed to generate reset code")
	}
	p := pendingCode{Code: code, Role: acc.role, ExpiresAt: s.now().Add(s.cfg.ResetCodeTTL)}
	if err := s.putCode(ctx, resetPrefix+email, p, s.cfg.ResetCodeTTL); err != nil {
		return "", apperr.Internal(err, "Failed to store reset code")
	}
	msg, err := mailer.PasswordReset(mail.Address{Name: acc.name, Address: email}, code, s.cfg.ResetCodeTTL)
	if err == nil {
		err = s.mail.Send(ctx, msg)
	}
	if err != nil {
		metrics.MailFailures.WithLabelValues("password_reset").Inc()
		s.logger.WarnContext(ctx, "password reset email not delivered", "email", email, "err", err)
	}
	return resetSentMessage, nil
}

// ResetPassword consumes a reset code and replaces the password digest.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) (string, error) {
	email = NormalizeEmail(email)
	key := resetPrefix + email
	p, ok, err := s.getCode(ctx, key)
	if err != nil {
		return "", apperr.Internal(err, "Failed to reset password")
	}
	if !ok {
		return "", apperr.Validation("Invalid or expired code")
	}
	if strings.TrimSpace(code) != p.Code {
		return "", apperr.Validation("Invalid code")
	}
	if p.expired(s.now()) {
		s.dropCode(ctx, key)
		return "", apperr.Validation("Code has expired")
	}
	if len(newPassword) < auth.MinPasswordLength {
		return "", apperr.Validation("Password must be at least %d characters long", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return "", apperr.Internal(err, "Failed to reset password")
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		acc, err := lookup(ctx, tx, p.Role, email)
		if err != nil {
			return err
		}
		if acc.role == model.RoleTeacher {
			return tx.SetTeacherPassword(ctx, acc.id, hash, s.now())
		}
		return tx.SetStudentPassword(ctx, acc.id, hash, s.now())
	})
	if err != nil {
		return "", s.accountErr(err, p.Role)
	}
	s.dropCode(ctx, key)
	return passwordSetMessage, nil
}

func (s *Service) dropCode(ctx context.Context, key string) {
	if err := s.codes.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "could not delete pending code", "key", key, "err", err)
	}
}

// accountErr maps a missing row to the role's not-found message.
func (s *Service) accountErr(err error, role model.Role) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		if role == model.RoleStudent {
			return apperr.NotFound("Student not found")
		}
		return apperr.NotFound("User not found")
	}
	return s.internal(err, "Request failed")
}

// internal passes classified errors through and wraps the rest.
func (s *Service) internal(err error, message string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(err, message)
}
