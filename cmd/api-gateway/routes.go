package main

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/directory-moderation-api/internal/handler"
	"github.com/noah-isme/directory-moderation-api/internal/middleware"
)

type handlers struct {
	proposals *handler.ProposalHandler
	pending   *handler.PendingChangeHandler
	entities  *handler.EntityHandler
	auth      *handler.AuthHandler
	audit     *handler.AuditHandler
	metrics   *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, prefix string, h handlers, validator middleware.TokenValidator) {
	r.GET("/health", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)

	api := r.Group(prefix)
	optional := middleware.OptionalJWT(validator)
	authed := middleware.JWT(validator)
	admin := []gin.HandlerFunc{authed, middleware.RequireAdmin()}

	api.POST("/auth/login", h.auth.Login)
	api.GET("/auth/me", authed, h.auth.Me)

	proposals := api.Group("/proposals")
	proposals.POST("", optional, h.proposals.Submit)
	adminProposals := proposals.Group("", admin...)
	adminProposals.POST("/research", h.proposals.Research)
	adminProposals.GET("", h.proposals.List)
	adminProposals.GET("/export", h.proposals.Export)
	adminProposals.GET("/:id", h.proposals.Get)
	adminProposals.POST("/:id/decision", h.proposals.Decide)

	pending := api.Group("/pending-changes", admin...)
	pending.GET("", h.pending.List)
	pending.GET("/:id", h.pending.Get)
	pending.POST("/:id/decision", h.pending.Decide)

	api.GET("/entities", optional, h.entities.List)
	api.GET("/entities/:slug", optional, h.entities.GetBySlug)
	api.GET("/entities/by-id/:id", authed, h.entities.Get)
	api.PATCH("/entities/:id", authed, h.entities.Update)
	api.GET("/categories", h.entities.ListCategories)
	api.GET("/tags", h.entities.ListTags)

	api.GET("/audit-logs", append(admin, h.audit.List)...)
	api.GET("/metrics/summary", append(admin, h.metrics.Summary)...)
}
