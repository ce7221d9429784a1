package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wyhuang/scholarship-engine/internal/models"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRoleKey  contextKey = "user_role"
	StudentIDKey contextKey = "student_id"
)

// Middleware validates the JWT token and stores the caller's identity, role
// and student number in the echo context.
func Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
		}

		secretKey, err := jwtSecretFromEnv()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Server auth configuration error")
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secretKey, nil
		})
		if err != nil || !token.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token claims")
		}

		sub, err := claims.GetSubject()
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token subject")
		}
		userID, err := uuid.Parse(sub)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid user ID in token")
		}

		rawRole, _ := claims["role"].(string)
		role, err := models.ParseRole(rawRole)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid role in token")
		}
		studentID, _ := claims["student_id"].(string)

		c.Set(string(UserIDKey), userID)
		c.Set(string(UserRoleKey), role)
		c.Set(string(StudentIDKey), studentID)
		return next(c)
	}
}

// RequireRoles wraps Middleware-protected routes with a role allowlist.
func RequireRoles(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, err := GetRoleFromContext(c)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			for _, allowed := range roles {
				if role == allowed {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "Insufficient role")
		}
	}
}

func GetUserIDFromContext(c echo.Context) (uuid.UUID, error) {
	id, ok := c.Get(string(UserIDKey)).(uuid.UUID)
	if !ok {
		return uuid.Nil, errors.New("user ID not found in context")
	}
	return id, nil
}

func GetRoleFromContext(c echo.Context) (models.Role, error) {
	role, ok := c.Get(string(UserRoleKey)).(models.Role)
	if !ok {
		return "", errors.New("role not found in context")
	}
	return role, nil
}

// GetActorFromContext builds the engine's actor identity for the caller.
// Students act under their student number; staff act under their account ID.
func GetActorFromContext(c echo.Context) (models.Actor, error) {
	role, err := GetRoleFromContext(c)
	if err != nil {
		return models.Actor{}, err
	}
	if role == models.RoleStudent {
		studentID, _ := c.Get(string(StudentIDKey)).(string)
		if studentID == "" {
			return models.Actor{}, errors.New("student ID not found in context")
		}
		return models.Actor{ID: studentID, Role: role}, nil
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		return models.Actor{}, err
	}
	return models.Actor{ID: userID.String(), Role: role}, nil
}
