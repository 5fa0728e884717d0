package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/go-api-accounts/internal/config"
	"github.com/go-api-accounts/internal/domain"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims holds the JWT payload fields.
type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Birthday  string `json:"birthday,omitempty"` // YYYY-MM-DD
	IsStaff   bool   `json:"is_staff,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Provider signs and verifies RS256 JWTs.
type Provider struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewProvider loads the PEM key pair named in cfg. In development a missing
// key pair is replaced by an ephemeral one, so tokens do not survive restarts.
func NewProvider(cfg *config.Config) (*Provider, error) {
	privBytes, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if errors.Is(err, os.ErrNotExist) && cfg.IsDevelopment() {
		slog.Warn("jwt key pair not found, using an ephemeral key", "path", cfg.JWTPrivateKeyPath)
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("generate private key: %w", err)
		}
		return NewProviderFromKey(key, cfg.JWTAccessTTL, cfg.JWTRefreshTTL), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubBytes, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return &Provider{privateKey: privKey, publicKey: pubKey, accessTTL: cfg.JWTAccessTTL, refreshTTL: cfg.JWTRefreshTTL}, nil
}

func NewProviderFromKey(key *rsa.PrivateKey, accessTTL, refreshTTL time.Duration) *Provider {
	return &Provider{privateKey: key, publicKey: &key.PublicKey, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// SignAccess issues a short-lived token carrying the user's email and birthday.
func (p *Provider) SignAccess(u *domain.User) (string, error) {
	c := Claims{
		UserID:    u.UserID,
		Email:     u.Email,
		IsStaff:   u.IsStaff,
		TokenType: TypeAccess,
	}
	if u.Birthday != nil {
		c.Birthday = u.Birthday.Format("2006-01-02")
	}
	return p.sign(c, p.accessTTL)
}

func (p *Provider) SignRefresh(userID string) (string, error) {
	return p.sign(Claims{UserID: userID, TokenType: TypeRefresh}, p.refreshTTL)
}

func (p *Provider) sign(c Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   c.UserID,
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	return token.SignedString(p.privateKey)
}

// Verify checks signature and expiry of any token this provider issued.
func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.publicKey, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// VerifyType is Verify restricted to one token type.
func (p *Provider) VerifyType(tokenStr, tokenType string) (*Claims, error) {
	c, err := p.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if c.TokenType != tokenType {
		return nil, fmt.Errorf("expected %s token, got %q", tokenType, c.TokenType)
	}
	return c, nil
}
