package middleware

import (
	"strings"

	"carpool/internal/models"
	"carpool/internal/utils"
	"carpool/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthRequired.
const (
	ContextUserID   = "user_id"
	ContextUserType = "user_type"
	ContextEmail    = "email"
)

// AuthRequired verifies the bearer token issued by the identity provider and
// puts the principal into the gin and request contexts.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c, "Authorization header required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			utils.UnauthorizedResponse(c, "Bearer token required")
			return
		}

		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			utils.UnauthorizedResponse(c, utils.ErrInvalidToken)
			return
		}

		userType := claims.UserType
		if userType == "" {
			userType = string(models.UserTypeRider)
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserType, userType)
		c.Set(ContextEmail, claims.Email)
		c.Request = c.Request.WithContext(logger.ContextWithUserID(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

// AdminRequired lets through admin and service principals, the only ones
// allowed to record payments by hand.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextUserType); !exists {
			utils.UnauthorizedResponse(c, "User type not found")
			return
		}

		if !CurrentPrincipal(c).IsPrivileged() {
			utils.ForbiddenResponse(c)
			return
		}

		c.Next()
	}
}

// CurrentPrincipal reads the principal stored by AuthRequired. It is empty on
// unauthenticated routes.
func CurrentPrincipal(c *gin.Context) models.Principal {
	return models.Principal{
		UserID:   c.GetString(ContextUserID),
		Email:    c.GetString(ContextEmail),
		UserType: models.UserType(c.GetString(ContextUserType)),
	}
}
