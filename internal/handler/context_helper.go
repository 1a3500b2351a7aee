package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edumanage/academy-api/internal/middleware"
	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) scope.Actor {
	claims := claimsFromContext(c)
	if claims == nil {
		return scope.Actor{}
	}
	return scope.Actor{ID: claims.UserID, Role: claims.Role, BranchID: claims.BranchID}
}

func parsePage(c *gin.Context) (skip, limit int) {
	skip, _ = strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return skip, limit
}

func parseBoolQuery(c *gin.Context, key string) *bool {
	switch c.Query(key) {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	default:
		return nil
	}
}

func parseDateQuery(c *gin.Context, key string) *time.Time {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}
