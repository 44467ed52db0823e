package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/iinsaf-marketplace-go/config"
	models "github.com/phillip/iinsaf-marketplace-go/models"
	"github.com/phillip/iinsaf-marketplace-go/services"
)

// Context keys set by AuthMiddleware.
const (
	KeyUserID   = "user_id"
	KeyRole     = "role"
	KeyVerified = "verified"
	KeySections = "sections"
)

type Claims struct {
	UserID   string   `json:"user_id"`
	Role     string   `json:"role"`
	Verified bool     `json:"verified"`
	Sections []string `json:"sections,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 access token for user.
func IssueToken(secret string, user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   user.ID.Hex(),
		Role:     user.Role,
		Verified: user.Verified,
		Sections: user.AssignedSections,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if _, err := primitive.ObjectIDFromHex(claims.UserID); err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return claims, nil
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		claims, err := ParseToken(cfg.JWTSecret, strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(KeyUserID, claims.UserID)
		c.Set(KeyRole, claims.Role)
		c.Set(KeyVerified, claims.Verified)
		c.Set(KeySections, claims.Sections)
		c.Next()
	}
}

// RequireRoles lets the request through when the caller holds one of roles.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, c.GetString(KeyRole)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
			return
		}
		c.Next()
	}
}

// RequireSection limits admins to their assigned sections. Superadmins pass.
func RequireSection(section string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(KeyRole)
		if role == models.RoleSuperAdmin {
			c.Next()
			return
		}
		if role != models.RoleAdmin || !slices.Contains(c.GetStringSlice(KeySections), section) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Section not assigned"})
			return
		}
		c.Next()
	}
}

// ActorFrom builds the service actor from the authenticated context.
func ActorFrom(c *gin.Context) (services.Actor, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString(KeyUserID))
	if err != nil {
		return services.Actor{}, false
	}
	return services.Actor{
		ID:       id,
		Role:     c.GetString(KeyRole),
		Verified: c.GetBool(KeyVerified),
		Sections: c.GetStringSlice(KeySections),
	}, true
}
