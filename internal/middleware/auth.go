package middleware // middleware holds the Echo middleware shared by every route group

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/utils"
)

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// JWTAuth validates a Bearer access token and stores its subject and role
// claims in the request context under "user_id" and "role". The secret
// must match the one used by utils.NewAccessToken.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid token"})
			}
			role, _ := claims["role"].(string)
			if !model.Role(role).Valid() {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid claims"})
			}
			c.Set(ctxUserID, claims["sub"])
			c.Set(ctxRole, role)
			return next(c)
		}
	}
}

// RequireRole aborts with 403 unless the authenticated role is one of
// roles. It must run after JWTAuth.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(ctxRole).(string)
			if !allowed[model.Role(role)] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "role not permitted"})
			}
			return next(c)
		}
	}
}

// Principal returns the caller established by JWTAuth.
func Principal(c echo.Context) (model.Principal, error) {
	id, err := userID(c)
	if err != nil {
		return model.Principal{}, err
	}
	role, _ := c.Get(ctxRole).(string)
	if !model.Role(role).Valid() {
		return model.Principal{}, errors.New("invalid role in context")
	}
	return model.Principal{UserID: id, Role: model.Role(role)}, nil
}

// userID converts the "sub" claim to a number. JSON decoding of the
// claims yields float64; other types are accepted for callers that set
// the value directly.
func userID(c echo.Context) (uint64, error) {
	switch t := c.Get(ctxUserID).(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// currentUserID is the rate limiter's view of the caller: the user id
// when authenticated, "anon" otherwise.
func currentUserID(c echo.Context) string {
	if id, err := userID(c); err == nil && id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
