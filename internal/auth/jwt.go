package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken     = errors.New("auth: invalid token")
	ErrExpiredToken     = errors.New("auth: token expired")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrInvalidAccount   = errors.New("auth: subject is not an account address")
)

// AccountHeader carries the caller account when no JWT secret is configured.
const AccountHeader = "X-Account"

// Verifier issues and validates HS256 bearer tokens whose subject is the
// caller's account address.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Issue signs a token for account valid for ttl.
func (v *Verifier) Issue(account common.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   account.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns its subject account.
func (v *Verifier) Verify(token string) (common.Address, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.Address{}, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return common.Address{}, ErrInvalidSignature
		}
		return common.Address{}, ErrInvalidToken
	}
	if !common.IsHexAddress(claims.Subject) {
		return common.Address{}, ErrInvalidAccount
	}
	return common.HexToAddress(claims.Subject), nil
}

type callerKey struct{}

// WithCaller stores the authenticated account in ctx.
func WithCaller(ctx context.Context, account common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, account)
}

// Caller returns the authenticated account, if any.
func Caller(ctx context.Context) (common.Address, bool) {
	a, ok := ctx.Value(callerKey{}).(common.Address)
	return a, ok
}

// Middleware resolves the caller of every request. With a verifier it reads
// "Authorization: Bearer <jwt>"; without one it trusts the X-Account header,
// which is only meant for local development. Requests without credentials
// pass through anonymously; handlers decide whether a caller is required.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				if h := r.Header.Get(AccountHeader); common.IsHexAddress(h) {
					r = r.WithContext(WithCaller(r.Context(), common.HexToAddress(h)))
				}
				next.ServeHTTP(w, r)
				return
			}

			token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !found || token == "" {
				next.ServeHTTP(w, r)
				return
			}
			account, err := v.Verify(token)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"` + err.Error() + `"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), account)))
		})
	}
}
