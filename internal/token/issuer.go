// Package token issues and verifies the RS256 bearer tokens handed out at login.
package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-accounts/pkg/utilities"
)

const keyBits = 2048

// ErrInvalidToken covers every reason a bearer token is rejected.
var ErrInvalidToken = errors.New("invalid token")

type Config struct {
	Issuer         string        `env:"ISSUER" envDefault:"accounts"`
	TTL            time.Duration `env:"TTL" envDefault:"24h"`
	PrivateKeyFile string        `env:"PRIVATE_KEY_FILE"`
}

// ConfigFromEnv reads JWT_* variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "JWT_"}); err != nil {
		return Config{}, fmt.Errorf("parse jwt config: %w", err)
	}
	return cfg, nil
}

// Claims carried by an access token. Subject holds the decimal user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"uid"`
}

// Issuer manages the signing key and token issuance.
type Issuer struct {
	key    *rsa.PrivateKey
	kid    string
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// New loads the signing key from cfg.PrivateKeyFile, or generates one when unset.
// A generated key lives only as long as the process.
func New(cfg Config) (*Issuer, error) {
	var (
		k   *rsa.PrivateKey
		err error
	)
	if cfg.PrivateKeyFile != "" {
		k, err = loadKey(cfg.PrivateKeyFile)
	} else {
		k, err = rsa.GenerateKey(rand.Reader, keyBits)
	}
	if err != nil {
		return nil, err
	}
	return NewWithKey(k, cfg.Issuer, cfg.TTL), nil
}

// NewWithKey builds an Issuer around an existing key.
func NewWithKey(k *rsa.PrivateKey, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{key: k, kid: keyID(&k.PublicKey), issuer: issuer, ttl: ttl, now: time.Now}
}

func loadKey(path string) (*rsa.PrivateKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	k, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key %s: %w", path, err)
	}
	return k, nil
}

// keyID is base64url of the first 8 bytes of SHA-256 over the modulus.
func keyID(pub *rsa.PublicKey) string {
	h := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(h[:8])
}

// KeyID returns the kid stamped into every token header.
func (s *Issuer) KeyID() string { return s.kid }

// Issue signs an access token for userID.
func (s *Issuer) Issue(userID int64) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        utilities.NewKSUID(),
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID: userID,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, algorithm, issuer and expiry and returns the user id.
func (s *Issuer) Parse(tokenString string) (int64, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return &s.key.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return 0, fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	return claims.UserID, nil
}

// JWKS returns a minimal JWKS containing the public key.
func (s *Issuer) JWKS() map[string]any {
	pub := s.key.PublicKey
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": s.kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
	return map[string]any{"keys": []any{jwk}}
}
