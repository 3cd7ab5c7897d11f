// CLAUDE:SUMMARY Identity session lookup: verifies identity-provider JWTs (HS256) from the Authorization header or session cookie
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingSubject = errors.New("token has no subject")

// Auth verifies session tokens minted by the external identity provider.
// It never issues tokens for end users; GenerateToken exists for tooling
// and tests that need a valid session.
type Auth struct {
	secret     []byte
	issuer     string
	cookieName string
}

// Claims is the subset of the identity provider's session we rely on.
// The subject is the user id.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserID returns the session subject.
func (c *Claims) UserID() string { return c.Subject }

func New(secret, issuer, cookieName string) *Auth {
	return &Auth{
		secret:     []byte(secret),
		issuer:     issuer,
		cookieName: cookieName,
	}
}

func (a *Auth) GenerateToken(userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) ValidateToken(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// ExtractClaims reads the session from the Authorization header (Bearer
// token) or, failing that, the session cookie. Returns nil if no valid
// session is present; callers treat that as an anonymous player. Without a
// secret every caller is anonymous.
func (a *Auth) ExtractClaims(r *http.Request) *Claims {
	if len(a.secret) == 0 {
		return nil
	}
	tokenStr := bearerToken(r)
	if tokenStr == "" && a.cookieName != "" {
		if c, err := r.Cookie(a.cookieName); err == nil {
			tokenStr = c.Value
		}
	}
	if tokenStr == "" {
		return nil
	}
	claims, err := a.ValidateToken(tokenStr)
	if err != nil {
		return nil
	}
	return claims
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
