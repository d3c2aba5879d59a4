package router

import (
	"loadcast/app/handler"
	"loadcast/app/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router Router
type Router struct {
	predictionHandler *handler.PredictionHandler
	pipelineHandler   *handler.PipelineHandler
	registryHandler   *handler.RegistryHandler
	apiKey            string
}

// NewRouter creates a new Router. pipelineHandler and registryHandler may be
// nil when MySQL or the queue is not configured.
func NewRouter(predictionHandler *handler.PredictionHandler, pipelineHandler *handler.PipelineHandler, registryHandler *handler.RegistryHandler, apiKey string) *Router {
	return &Router{
		predictionHandler: predictionHandler,
		pipelineHandler:   pipelineHandler,
		registryHandler:   registryHandler,
		apiKey:            apiKey,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	api := engine.Group("/api/v1")
	{
		// Inference
		api.POST("/predict", r.predictionHandler.Predict)
		api.POST("/report", r.predictionHandler.Report)
		api.GET("/report/latest", r.predictionHandler.LatestReport)
		api.GET("/models/served", r.predictionHandler.Served)

		// Pipeline runs (management, API key protected)
		if r.pipelineHandler != nil {
			runs := api.Group("/pipeline/runs")
			runs.Use(middleware.AuthMiddleware(r.apiKey))
			{
				runs.POST("", r.pipelineHandler.Submit)
				runs.GET("", r.pipelineHandler.ListRuns)
				runs.GET("/:id", r.pipelineHandler.GetRun)
				runs.DELETE("/:id", r.pipelineHandler.CancelRun)
			}
		}

		// Model registry
		if r.registryHandler != nil {
			models := api.Group("/models")
			{
				models.GET("", r.registryHandler.ListModels)
				models.GET("/:name/versions", r.registryHandler.ListVersions)
				models.POST("/:name/versions/:version/stage", middleware.AuthMiddleware(r.apiKey), r.registryHandler.TransitionStage)
			}
		}
	}

	// Prometheus metrics
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
