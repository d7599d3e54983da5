package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrCredentialsNotConfigured = errors.New("auth: realtime credentials not configured")

// realtimePaths is the capability set granted to a softphone: its own session,
// conversations, legs and media.
var realtimePaths = map[string]any{
	"/*/users/**":         map[string]any{},
	"/*/conversations/**": map[string]any{},
	"/*/sessions/**":      map[string]any{},
	"/*/devices/**":       map[string]any{},
	"/*/legs/**":          map[string]any{},
	"/*/media/**":         map[string]any{},
	"/*/applications/**":  map[string]any{},
	"/*/knocking/**":      map[string]any{},
}

type RealtimeClaims struct {
	jwt.RegisteredClaims

	ApplicationID string         `json:"application_id"`
	ACL           map[string]any `json:"acl"`
}

// RealtimeCredential is the short-lived token a softphone logs in with.
type RealtimeCredential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// KeySource returns the PEM private key; empty means not configured.
type KeySource func() ([]byte, error)

// RealtimeIssuer signs RS256 credentials for the voice provider with the
// application's private key. The key is loaded on first use, so a missing
// key surfaces per request instead of at startup.
type RealtimeIssuer struct {
	applicationID string
	ttl           time.Duration
	source        KeySource

	once   sync.Once
	key    *rsa.PrivateKey
	keyErr error
}

func NewRealtimeIssuer(applicationID string, ttl time.Duration, source KeySource) *RealtimeIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RealtimeIssuer{applicationID: strings.TrimSpace(applicationID), ttl: ttl, source: source}
}

func (r *RealtimeIssuer) Issue(now time.Time, subject string) (RealtimeCredential, error) {
	if r.applicationID == "" {
		return RealtimeCredential{}, fmt.Errorf("%w: application id missing", ErrCredentialsNotConfigured)
	}
	if strings.TrimSpace(subject) == "" {
		return RealtimeCredential{}, errors.New("auth: credential subject required")
	}
	key, err := r.signingKey()
	if err != nil {
		return RealtimeCredential{}, err
	}

	exp := now.Add(r.ttl)
	claims := RealtimeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		ApplicationID: r.applicationID,
		ACL:           map[string]any{"paths": realtimePaths},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return RealtimeCredential{}, fmt.Errorf("auth: sign realtime credential: %w", err)
	}
	return RealtimeCredential{Token: tok, ExpiresAt: exp}, nil
}

func (r *RealtimeIssuer) signingKey() (*rsa.PrivateKey, error) {
	r.once.Do(func() {
		if r.source == nil {
			r.keyErr = fmt.Errorf("%w: private key missing", ErrCredentialsNotConfigured)
			return
		}
		pem, err := r.source()
		if err != nil {
			r.keyErr = fmt.Errorf("%w: %w", ErrCredentialsNotConfigured, err)
			return
		}
		if len(pem) == 0 {
			r.keyErr = fmt.Errorf("%w: private key missing", ErrCredentialsNotConfigured)
			return
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
		if err != nil {
			r.keyErr = fmt.Errorf("%w: private key unreadable: %w", ErrCredentialsNotConfigured, err)
			return
		}
		r.key = key
	})
	return r.key, r.keyErr
}
