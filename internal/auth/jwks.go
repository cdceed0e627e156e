// Package auth verifies caller identity: IdP-issued bearer tokens for
// humans and hashed API keys for machine callers.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/chatorder/internal/auth/domain"
	"github.com/smallbiznis/chatorder/internal/config"
	"go.uber.org/zap"
)

const jwksCacheTTL = time.Hour

// Verifier validates RS256 bearer tokens against the IdP's JWKS endpoint.
// Keys are fetched lazily and cached; an unknown kid forces a refresh.
type Verifier struct {
	jwksURL  string
	audience string
	client   *http.Client
	log      *zap.Logger

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
}

func NewVerifier(cfg config.Config, log *zap.Logger) *Verifier {
	return &Verifier{
		jwksURL:  cfg.IdPJWKSURL,
		audience: cfg.IdPAudience,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log.Named("auth.jwks"),
		keys:     make(map[string]*rsa.PublicKey),
	}
}

type bearerClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Verify checks signature, expiry, and audience, and returns the identity
// claims. Every failure maps to ErrUnauthorized; the cause is logged, not
// leaked to the caller.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*domain.Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: malformed token", domain.ErrUnauthorized)
	}
	kid, ok := unverified.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("%w: token missing kid", domain.ErrUnauthorized)
	}

	key, err := v.publicKey(ctx, kid)
	if err != nil {
		v.log.Warn("jwks key lookup failed", zap.String("kid", kid), zap.Error(err))
		return nil, fmt.Errorf("%w: unknown signing key", domain.ErrUnauthorized)
	}

	var claims bearerClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	}, jwt.WithAudience(v.audience))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: token rejected", domain.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token missing subject", domain.ErrUnauthorized)
	}

	return &domain.Claims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}, nil
}

func (v *Verifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, exists := v.keys[kid]
	fresh := time.Since(v.lastFetch) < jwksCacheTTL
	v.mu.RUnlock()
	if exists && fresh {
		return key, nil
	}
	return v.refresh(ctx, kid)
}

func (v *Verifier) refresh(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Another request may have refreshed while we waited on the lock.
	if key, exists := v.keys[kid]; exists && time.Since(v.lastFetch) < time.Minute {
		return key, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			v.log.Warn("skipping unparseable jwks key", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		v.keys[k.Kid] = pub
	}
	v.lastFetch = time.Now()

	if key, exists := v.keys[kid]; exists {
		return key, nil
	}
	return nil, fmt.Errorf("kid %s not present in jwks", kid)
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
