// Package auth verifies the bearer tokens presented when a client opens a
// chat connection and maps them to chat identities.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/omochice/support-chat/internal/chat"
	"github.com/omochice/support-chat/internal/platformerrors"
)

// ErrMissingToken is returned when a request carries no token.
var ErrMissingToken = errors.New("auth: missing bearer token")

// Claims are the token claims understood by the chat server.
type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewVerifier creates a Verifier. Empty issuer or audience are not checked.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   time.Minute,
	}
}

// Verify parses and validates a token and returns its identity.
func (v *Verifier) Verify(token string) (chat.Identity, error) {
	if token == "" {
		return chat.Identity{}, unauthorized(ErrMissingToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return chat.Identity{}, unauthorized(err)
	}

	if claims.Subject == "" {
		return chat.Identity{}, unauthorized(errors.New("token has no subject"))
	}
	role, err := chat.ParseRole(claims.Role)
	if err != nil {
		return chat.Identity{}, unauthorized(err)
	}
	return chat.Identity{UserID: claims.Subject, Name: claims.Name, Role: role}, nil
}

// VerifyRequest extracts the token from the Authorization header or the
// token query parameter and verifies it. Browsers cannot set headers on a
// WebSocket handshake, hence the query fallback.
func (v *Verifier) VerifyRequest(r *http.Request) (chat.Identity, error) {
	token := BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return v.Verify(token)
}

// Issue signs a token for identity valid for ttl.
func (v *Verifier) Issue(identity chat.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: identity.Name,
		Role: string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// BearerToken returns the token of an "Authorization: Bearer" header value.
func BearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(err error) *platformerrors.PlatformError {
	return platformerrors.NewError(platformerrors.LayerHandler, platformerrors.ErrorTypeUnauthorized, "invalid token", err)
}
