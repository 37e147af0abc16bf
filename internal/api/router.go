package api

import (
	"go-election-merge/internal/api/handler"
	"go-election-merge/pkg/router"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "go-election-merge/docs"
)

func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.POST("/api/v1/merges", h.CreateMerge)
	r.POST("/api/v1/merges/compare", h.CompareMerges)
	r.GET("/api/v1/runs", h.ListRuns)
	r.GET("/api/v1/runs/*", h.GetRun)
	r.DELETE("/api/v1/runs/*", h.DeleteRun)
	r.GET("/api/v1/explain/*", h.Explain)
	r.Mount("/swagger/", httpSwagger.WrapHandler)
}
