package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/directory-moderation-api/internal/dto"
	"github.com/noah-isme/directory-moderation-api/internal/middleware"
	"github.com/noah-isme/directory-moderation-api/internal/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func actorFromContext(c *gin.Context) *models.ActingUser {
	return middleware.ActorFromContext(c)
}

func requestMeta(c *gin.Context) dto.RequestMeta {
	return dto.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

// pagination mirrors the clamping the repositories apply to limit and offset.
func pagination(limit, offset, count int) *models.Pagination {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return &models.Pagination{Limit: limit, Offset: offset, Count: count}
}
