package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject = "sub"
	claimOwnerID = "owner_id"
	claimAdmin   = "admin"
)

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// OwnerIDFromContext extracts the authenticated owner id from JWT claims.
func OwnerIDFromContext(c echo.Context) (string, error) {
	claims, err := claimsFromContext(c)
	if err != nil {
		return "", err
	}
	if ownerID := claimString(claims, claimOwnerID); ownerID != "" {
		return ownerID, nil
	}
	if ownerID := claimString(claims, claimSubject); ownerID != "" {
		return ownerID, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "owner id missing")
}

// IsAdminFromContext reports whether the token carries the admin claim.
func IsAdminFromContext(c echo.Context) bool {
	claims, err := claimsFromContext(c)
	if err != nil {
		return false
	}
	admin, ok := claims[claimAdmin].(bool)
	return ok && admin
}

// GenerateToken creates a signed JWT for the owner.
func GenerateToken(ownerID string, admin bool, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", time.Time{}, fmt.Errorf("owner id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: ownerID,
		claimOwnerID: ownerID,
		claimAdmin:   admin,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// RefreshTokenFromContext reissues a token for the current claims with a fresh
// expiry, preserving the owner id and admin flag.
func RefreshTokenFromContext(c echo.Context, secret string, expiresIn time.Duration) (string, time.Time, error) {
	ownerID, err := OwnerIDFromContext(c)
	if err != nil {
		return "", time.Time{}, err
	}
	return GenerateToken(ownerID, IsAdminFromContext(c), secret, expiresIn)
}

func claimsFromContext(c echo.Context) (jwt.MapClaims, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
