package utils

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hanfang-health/backend/cache"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// IDGenerator manages the generation of unique 8-character alphanumeric IDs
// used for patient record numbers.
type IDGenerator struct {
	usedIDs      map[string]bool
	mutex        sync.Mutex
	characterSet []rune
}

// NewIDGenerator creates a new instance of IDGenerator
func NewIDGenerator() *IDGenerator {
	// Use only capital letters and numbers for better legibility
	// Omitting easily confused characters: 0, O, 1, I
	characterSet := []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")

	return &IDGenerator{
		usedIDs:      make(map[string]bool),
		characterSet: characterSet,
	}
}

// GenerateID creates a new unique 8-character ID
func (g *IDGenerator) GenerateID() (string, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	maxAttempts := 100
	attempts := 0

	for attempts < maxAttempts {
		attempts++

		id, err := g.generateRandomID(8)
		if err != nil {
			return "", err
		}

		if !g.usedIDs[id] {
			g.usedIDs[id] = true
			return id, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique ID after %d attempts", maxAttempts)
}

// generateRandomID creates a random ID of specified length
func (g *IDGenerator) generateRandomID(length int) (string, error) {
	result := make([]rune, length)

	charSetLength := big.NewInt(int64(len(g.characterSet)))

	for i := 0; i < length; i++ {
		randomIndex, err := rand.Int(rand.Reader, charSetLength)
		if err != nil {
			return "", err
		}
		result[i] = g.characterSet[randomIndex.Int64()]
	}

	return string(result), nil
}

// CleanupOldIDs resets the dedup set once it grows past maxSize
func (g *IDGenerator) CleanupOldIDs(maxSize int) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.usedIDs) > maxSize {
		g.usedIDs = make(map[string]bool)
	}
}

const notificationSuffixChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// NotificationID builds a schedule identifier from the current time plus a
// 6-character random suffix, e.g. "1717690000123-x3k9qa".
func NotificationID() string {
	suffix := make([]byte, 6)
	charSetLength := big.NewInt(int64(len(notificationSuffixChars)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, charSetLength)
		if err != nil {
			// crypto/rand only fails when the platform source is broken;
			// fall back to a uuid fragment rather than erroring out.
			return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.New().String()[:6])
		}
		suffix[i] = notificationSuffixChars[n.Int64()]
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), string(suffix))
}

// TokenIssuer signs and verifies session JWTs, tracking issued token IDs in
// Redis so logout can revoke them.
type TokenIssuer struct {
	cache     *cache.Cache
	secretKey []byte
	lifetime  time.Duration
}

// NewTokenIssuer creates a TokenIssuer backed by the given Redis client.
func NewTokenIssuer(redisClient *redis.Client, secretKey string, lifetime time.Duration) *TokenIssuer {
	return &TokenIssuer{
		cache:     cache.NewCache(redisClient, "jwt:"),
		secretKey: []byte(secretKey),
		lifetime:  lifetime,
	}
}

// Issue creates a signed JWT for the given user and role.
func (g *TokenIssuer) Issue(ctx context.Context, userID, role string) (string, error) {
	jti := uuid.New().String()

	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(g.lifetime).Unix(),
		"iat":  time.Now().Unix(),
		"jti":  jti,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(g.secretKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}

	if err := g.cache.Set(ctx, jti, claims, g.lifetime); err != nil {
		return "", errors.Wrap(err, "failed to cache token")
	}

	return signedToken, nil
}

// Verify parses the JWT, checks the signature and confirms the token has not
// been revoked.
func (g *TokenIssuer) Verify(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return g.secretKey, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	jti, ok := claims["jti"].(string)
	if !ok {
		return nil, errors.New("invalid token identifier")
	}

	var cachedClaims jwt.MapClaims
	if err := g.cache.Get(ctx, jti, &cachedClaims); err != nil {
		return nil, errors.Wrap(err, "token not found in cache")
	}

	return claims, nil
}

// Revoke removes a token from the cache, invalidating it before expiry.
func (g *TokenIssuer) Revoke(ctx context.Context, jti string) error {
	return g.cache.Delete(ctx, jti)
}
