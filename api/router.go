package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricewatch/api/handler"
	"github.com/use-agent/pricewatch/api/middleware"
	"github.com/use-agent/pricewatch/config"
)

// Services are the collaborators behind the routes.
type Services struct {
	Products handler.ProductStore
	Crawler  handler.Crawler
	Batches  handler.BatchRunner
	Pool     handler.PoolStatser
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(cfg *config.Config, svc Services, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(svc.Pool, svc.Crawler, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Products
	protected.POST("/products", handler.CreateProduct(svc.Products))
	protected.GET("/products", handler.ListProducts(svc.Products))
	protected.GET("/products/:id", handler.GetProduct(svc.Products))
	protected.PUT("/products/:id", handler.UpdateProduct(svc.Products))
	protected.PATCH("/products/:id", handler.UpdateProduct(svc.Products))
	protected.DELETE("/products/:id", handler.DeleteProduct(svc.Products))
	protected.GET("/export_csv", handler.ExportCSV(svc.Products))

	// Crawlers
	protected.POST("/run_crawler", handler.RunCrawler(svc.Crawler))
	protected.POST("/terminate_crawler", handler.TerminateCrawler(svc.Crawler))
	protected.GET("/crawlers", handler.ListCrawlers(svc.Crawler))
	protected.GET("/results/:site", handler.GetResult(svc.Crawler))

	// Batch
	if svc.Batches != nil {
		protected.POST("/run_crawler/batch", handler.PostBatch(svc.Batches))
		protected.GET("/batch/:id", handler.GetBatch(svc.Batches))
	}

	return r
}
