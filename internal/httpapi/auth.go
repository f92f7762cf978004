package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	contextKeyClaims = "auth_claims"

	// RoleMember is a serving member operating on their own records.
	RoleMember = "member"
	// RoleStaff is depot or administrative staff.
	RoleStaff = "staff"
	// RoleTailor is a registered tailor shop operator.
	RoleTailor = "tailor"
)

// Claims is the bearer token payload. Subject carries the numeric user or
// shop identifier.
type Claims struct {
	UserID uint   `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// BearerAuth validates the Authorization header and stores the claims on
// the request context.
func BearerAuth(signingKey []byte) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing bearer token"))
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return signingKey, nil
		})
		if err != nil || !token.Valid {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token"))
			return
		}
		ctx.Set(contextKeyClaims, claims)
		ctx.Next()
	}
}

// RequireRole gates a route group to the listed roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := getClaims(ctx)
		if claims == nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		for _, role := range roles {
			if claims.Role == role {
				ctx.Next()
				return
			}
		}
		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "insufficient role"))
	}
}

// scopeFor maps the caller's role to the owner restriction composed into
// reads. Staff are unrestricted (nil); every other role is pinned to its own
// rows. Tailor voucher visibility is scoped by shop separately.
func scopeFor(claims *Claims) *uint {
	if claims.Role == RoleStaff {
		return nil
	}
	userID := claims.UserID
	return &userID
}

func getClaims(ctx *gin.Context) *Claims {
	value, ok := ctx.Get(contextKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := value.(*Claims)
	return claims
}
