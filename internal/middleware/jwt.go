package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatcore/internal/apperr"
)

// Session validates an HS256 Bearer token and stores its subject under
// "user_id". The subject is the holder identity for seat locks, so tokens
// without a string subject are rejected.
func Session(secret string) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return apperr.Unauthorized("missing bearer token")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			var claims jwt.RegisteredClaims
			tok, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return apperr.Unauthorized("invalid token")
			}
			if claims.Subject == "" {
				return apperr.Unauthorized("token without subject")
			}
			c.Set(userIDKey, claims.Subject)
			return next(c)
		}
	}
}
