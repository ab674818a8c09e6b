package server

import (
	"net/http"
	"strings"

	"p2p-coin-desk-go/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const identityKey = "identity"

// identity verifies the HS256 bearer token from the Authorization header and
// stores the caller in the context.
func (s *Server) identity(next echo.HandlerFunc) echo.HandlerFunc {
	return s.authenticate(next, false)
}

// streamIdentity is identity for websocket upgrades. Browsers cannot set
// headers there, so the token may also come from the access_token query
// parameter.
func (s *Server) streamIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return s.authenticate(next, true)
}

func (s *Server) authenticate(next echo.HandlerFunc, allowQuery bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := bearerToken(c.Request(), allowQuery)
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}

		tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid claims")
		}

		sub, _ := claims["sub"].(string)
		email, _ := claims["email"].(string)
		if sub == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
		}

		c.Set(identityKey, models.Identity{UserId: sub, Email: email})
		return next(c)
	}
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.deps.Gate.Authorize(c.Request().Context(), caller(c).Email); err != nil {
			return err
		}
		return next(c)
	}
}

func caller(c echo.Context) models.Identity {
	who, _ := c.Get(identityKey).(models.Identity)
	return who
}

func bearerToken(r *http.Request, allowQuery bool) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if allowQuery {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
