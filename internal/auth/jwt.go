package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"attendsheets/internal/model"
)

// DefaultTokenTTL applies when Issue is called without a lifetime.
const DefaultTokenTTL = 15 * time.Minute

// ErrExpired is returned by Parse for well-formed tokens past their exp.
var ErrExpired = errors.New("token has expired")

// Claims represents JWT payload. Subject carries the account email.
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 tokens with a shared secret.
type Issuer struct {
	key        []byte
	issuer     string
	now        func() time.Time
	defaultTTL time.Duration
}

// NewIssuer returns an Issuer for key. issuer is written to and checked
// against the iss claim when non-empty.
func NewIssuer(key, issuer string) *Issuer {
	return &Issuer{key: []byte(key), issuer: issuer, now: time.Now, defaultTTL: DefaultTokenTTL}
}

// WithDefaultTTL returns a copy whose tokens issued without a lifetime live
// for ttl. Non-positive values keep DefaultTokenTTL.
func (i *Issuer) WithDefaultTTL(ttl time.Duration) *Issuer {
	cp := *i
	if ttl > 0 {
		cp.defaultTTL = ttl
	}
	return &cp
}

// WithClock returns a copy reading time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

// Issue signs a token for email and role that lives for ttl, or the
// issuer's default lifetime when ttl is not positive.
func (i *Issuer) Issue(email string, role model.Role, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = i.defaultTTL
	}
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a token and returns claims.
func (i *Issuer) Parse(tokenStr string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired()}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return Claims{}, errors.New("invalid token subject")
	}
	return *claims, nil
}
