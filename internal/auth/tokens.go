package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Claims bind a token to exactly one tenant. Every request's tenant scope
// comes from here, never from the request body.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

const (
	issuer   = "omnichannel-rag-platform"
	tokenTTL = 24 * time.Hour
)

var (
	loadSecretOnce sync.Once
	accessSecret   []byte
	loadSecretErr  error
)

func ensureSecret() error {
	loadSecretOnce.Do(func() {
		secret := os.Getenv("ACCESS_SECRET")
		if len(secret) < 32 {
			loadSecretErr = fmt.Errorf("ACCESS_SECRET must be configured and at least 32 characters")
			return
		}
		accessSecret = []byte(secret)
	})
	return loadSecretErr
}

// IssueTenantToken mints an HMAC-signed token scoped to one tenant. The JTI
// lands in Redis so the token can be revoked before expiry.
func IssueTenantToken(tenantID, role string, rdb *redis.Client) (string, error) {
	if err := ensureSecret(); err != nil {
		return "", err
	}
	if tenantID == "" {
		return "", errors.New("tenant id is required")
	}

	now := time.Now()
	jti := uuid.NewString()

	claims := Claims{
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   tenantID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(accessSecret)
	if err != nil {
		return "", err
	}

	if rdb != nil {
		ctx := context.Background()
		if err := rdb.Set(ctx, "token:"+jti, tenantID, tokenTTL).Err(); err != nil {
			return "", err
		}
	}

	return signed, nil
}

// ValidateToken parses and verifies a tenant token. When Redis is available
// the JTI must still exist; without Redis, signature and expiry checks stand
// alone so an outage does not lock every tenant out.
func ValidateToken(tokenString string, rdb *redis.Client) (*Claims, error) {
	if err := ensureSecret(); err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return accessSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TenantID == "" {
		return nil, errors.New("token has no tenant")
	}

	if rdb != nil {
		ctx := context.Background()
		exists, err := rdb.Exists(ctx, "token:"+claims.ID).Result()
		if err == nil && exists != 1 {
			return nil, errors.New("token revoked or expired")
		}
	}

	return claims, nil
}

// RevokeToken invalidates a token by its JTI.
func RevokeToken(jti string, rdb *redis.Client) error {
	if rdb == nil {
		return errors.New("revocation requires redis")
	}
	return rdb.Del(context.Background(), "token:"+jti).Err()
}
