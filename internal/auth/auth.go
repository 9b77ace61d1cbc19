// Package auth verifies the identity tokens presented by connecting
// clients. Tokens are issued by the platform's auth service; this package
// only validates them and extracts the connection identity.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in identity tokens.
const (
	RoleAgent      = "agent"
	RoleSupervisor = "supervisor"
	RoleDashboard  = "dashboard"
)

// Claims is the only supported token claims shape for the coordinator.
// TenantID must always be present; AgentID is set only for agent seats.
type Claims struct {
	jwt.RegisteredClaims

	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	AgentID  string `json:"agent_id,omitempty"`
	Role     string `json:"role"`
}

// Identity is the verified identity attached to a connection.
type Identity struct {
	UserID   string
	TenantID string
	AgentID  string
	Role     string
}

// IsAgent reports whether this identity may issue call-control actions.
func (id Identity) IsAgent() bool {
	return id.Role == RoleAgent && id.AgentID != ""
}

// Verifier validates HS256 identity tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier for the given shared secret.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify parses and validates a token, returning the identity it carries.
func (v *Verifier) Verify(tokenString string, now time.Time) (Identity, error) {
	var claims Claims

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second), // clock skew tolerance
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parser := jwt.NewParser(opts...)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}

	if claims.UserID == "" {
		return Identity{}, errors.New("user_id missing")
	}
	if claims.TenantID == "" {
		return Identity{}, errors.New("tenant_id missing")
	}
	if claims.Role == "" {
		return Identity{}, errors.New("role missing")
	}
	if claims.Role == RoleAgent && claims.AgentID == "" {
		return Identity{}, errors.New("agent_id missing for agent role")
	}

	return Identity{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		AgentID:  claims.AgentID,
		Role:     claims.Role,
	}, nil
}

// Sign issues a token for the given identity. The coordinator itself only
// verifies tokens; Sign exists for tooling and tests.
func Sign(secret, issuer string, id Identity, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   id.UserID,
		TenantID: id.TenantID,
		AgentID:  id.AgentID,
		Role:     id.Role,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}
