package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
)

// RequireRole checks that the caller holds one of the given roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if !slices.Contains(roles, claims.Role) {
			response.AbortFail(c, http.StatusForbidden, response.ErrStaffAccessOnly)
			return
		}
		c.Next()
	}
}

// RequireStaff admits teachers and admins.
func RequireStaff() gin.HandlerFunc {
	return RequireRole(model.RoleTeacher, model.RoleAdmin)
}
