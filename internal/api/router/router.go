package router

import (
	"github.com/cuongbtq/inference-hitl/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// Options tunes the router.
type Options struct {
	RateLimit RateLimitConfig
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/liveness", healthHandler.Liveness)
	r.GET("/health", healthHandler.Health)

	jobHandler := handler.NewJobHandler(deps)

	// POST /enqueue - create a job and hand it to the worker
	r.POST("/enqueue", RateLimitMiddleware(opts.RateLimit), jobHandler.Enqueue)

	// GET /job?id= - job details
	r.GET("/job", jobHandler.GetJob)

	// GET /jobs - list jobs with status filter and pagination
	r.GET("/jobs", jobHandler.ListJobs)

	// POST /reviewJob - human decision on a job in review
	r.POST("/reviewJob", jobHandler.ReviewJob)

	return r
}
