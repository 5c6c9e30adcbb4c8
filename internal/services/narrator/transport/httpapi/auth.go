package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Role is the caller's seat at the table.
type Role string

const (
	RoleGM     Role = "gm"
	RolePlayer Role = "player"
)

const (
	minSecretLen = 32
	claimsKey    = "narrator.claims"
)

// Claims scope a bearer token to one world and role.
type Claims struct {
	jwt.RegisteredClaims
	WorldID string `json:"world_id"`
	Role    Role   `json:"role"`
}

// Tokens issues and verifies HS256 world-scoped bearer tokens.
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokens builds a verifier. The secret must be at least 32 bytes.
func NewTokens(secret []byte, issuer string, now func() time.Time) (*Tokens, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretLen)
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("token issuer is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Tokens{secret: append([]byte(nil), secret...), issuer: issuer, now: now}, nil
}

// Issue signs a token for worldID and role valid for ttl.
func (t *Tokens) Issue(worldID string, role Role, ttl time.Duration) (string, error) {
	if strings.TrimSpace(worldID) == "" {
		return "", errors.New("world id is required")
	}
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   string(role) + ":" + worldID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		WorldID: worldID,
		Role:    role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses and validates a token.
func (t *Tokens) Verify(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, errUnauthenticated("bearer token is required")
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, errUnauthenticated("token expired")
		}
		return Claims{}, errUnauthenticated("invalid token")
	}
	switch claims.Role {
	case RoleGM, RolePlayer:
	default:
		return Claims{}, errUnauthenticated("invalid token role")
	}
	if strings.TrimSpace(claims.WorldID) == "" {
		return Claims{}, errUnauthenticated("token has no world")
	}
	return claims, nil
}

// authError is rendered as 401 or 403 rather than through domain codes.
type authError struct {
	status  int
	message string
}

func (e *authError) Error() string { return e.message }

func errUnauthenticated(msg string) error {
	return &authError{status: http.StatusUnauthorized, message: msg}
}

func errForbidden(msg string) error {
	return &authError{status: http.StatusForbidden, message: msg}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	// Browsers cannot set headers on websocket upgrades.
	return c.Query("access_token")
}

// authorize requires a token for the :world path parameter with one of roles.
func authorize(tokens *Tokens, roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.Verify(bearerToken(c))
		if err != nil {
			writeError(c, err)
			return
		}
		if claims.WorldID != c.Param("world") {
			writeError(c, errForbidden("token is not scoped to this world"))
			return
		}
		allowed := false
		for _, r := range roles {
			if claims.Role == r {
				allowed = true
				break
			}
		}
		if !allowed {
			writeError(c, errForbidden("role not allowed"))
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func claimsFrom(c *gin.Context) Claims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(Claims)
	return claims
}
