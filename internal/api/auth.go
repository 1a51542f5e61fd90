package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MJE43/wheel8/internal/engine"
)

// Role is what a token holder may do.
type Role string

const (
	RolePlayer   Role = "player"
	RoleOperator Role = "operator"
)

// Claims are the JWT claims of a wheel8 token. The subject is the 64-hex
// requester id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the verified caller of a request.
type Identity struct {
	Requester engine.RequesterID
	Role      Role
}

type identityKey struct{}

// IdentityFromContext returns the identity stored by Authenticator.Require.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticator issues and verifies HS256 tokens.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewAuthenticator(secret []byte, issuer string) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	return &Authenticator{secret: secret, issuer: issuer, now: time.Now}, nil
}

// IssueToken signs a token for requester with the given role.
func (a *Authenticator) IssueToken(requester engine.RequesterID, role Role, ttl time.Duration) (string, error) {
	if role != RolePlayer && role != RoleOperator {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := a.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   requester.String(),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses tokenStr and returns the identity it carries.
func (a *Authenticator) Verify(tokenStr string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}

	requester, err := engine.ParseRequesterID(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token subject: %w", err)
	}
	if claims.Role != RolePlayer && claims.Role != RoleOperator {
		return Identity{}, fmt.Errorf("invalid token role %q", claims.Role)
	}
	return Identity{Requester: requester, Role: claims.Role}, nil
}

// Require rejects requests without a valid bearer token for one of roles.
func (a *Authenticator) Require(eh *ErrorHandler, roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				eh.HandleAuthError(w, r, http.StatusUnauthorized, "Bearer token required")
				return
			}
			id, err := a.Verify(strings.TrimSpace(tokenStr))
			if err != nil {
				eh.HandleAuthError(w, r, http.StatusUnauthorized, "Invalid bearer token")
				return
			}
			allowed := false
			for _, role := range roles {
				if id.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				eh.HandleAuthError(w, r, http.StatusForbidden, fmt.Sprintf("Role %s may not perform this operation", id.Role))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
		})
	}
}
