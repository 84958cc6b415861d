package api

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errMissingIdentity = errors.New("no caller identity")

// JWKSIdentity validates RS256 bearer tokens against a JWKS endpoint and uses the
// token's email claim (falling back to sub) as the caller identity.
type JWKSIdentity struct {
	jwksURL  string
	audience string
	issuer   string
	client   *http.Client
	ttl      time.Duration
	// minRefetch spaces out JWKS requests triggered by unknown kids.
	minRefetch time.Duration

	mu          sync.Mutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
}

// NewJWKSIdentity creates a provider; audience and issuer are enforced when non-empty.
func NewJWKSIdentity(jwksURL, audience, issuer string) *JWKSIdentity {
	return &JWKSIdentity{
		jwksURL:  jwksURL,
		audience: strings.TrimSpace(audience),
		issuer:   strings.TrimSpace(issuer),
		client:   &http.Client{Timeout: 10 * time.Second},
		ttl:      10 * time.Minute,

		minRefetch: time.Minute,
	}
}

func (j *JWKSIdentity) Identify(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errMissingIdentity
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
		return "", errors.New("invalid Authorization header format")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if j.audience != "" {
		opts = append(opts, jwt.WithAudience(j.audience))
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid not found in token header")
		}
		return j.publicKey(kid)
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	if email, ok := claims["email"].(string); ok && strings.TrimSpace(email) != "" {
		return email, nil
	}
	if sub, ok := claims["sub"].(string); ok && strings.TrimSpace(sub) != "" {
		return sub, nil
	}
	return "", errMissingIdentity
}

// publicKey returns the key for kid, refetching the JWKS when the cache is stale or
// the kid is unknown (key rotation). At most one fetch is attempted per minRefetch.
func (j *JWKSIdentity) publicKey(kid string) (*rsa.PublicKey, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	key, cached := j.keys[kid]
	if cached && time.Since(j.fetchedAt) < j.ttl {
		return key, nil
	}
	if !j.lastAttempt.IsZero() && time.Since(j.lastAttempt) < j.minRefetch {
		if cached {
			return key, nil
		}
		return nil, fmt.Errorf("key with kid %s not found", kid)
	}
	j.lastAttempt = time.Now()

	keys, err := j.fetchKeys()
	if err != nil {
		if cached {
			return key, nil
		}
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	j.keys = keys
	j.fetchedAt = time.Now()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("key with kid %s not found", kid)
	}
	return key, nil
}

func (j *JWKSIdentity) fetchKeys() (map[string]*rsa.PublicKey, error) {
	resp, err := j.client.Get(j.jwksURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, err
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			return nil, err
		}
		keys[key.Kid] = pub
	}
	return keys, nil
}

// parseRSAPublicKey parses RSA public key from base64url modulus and exponent
func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp)}, nil
}
