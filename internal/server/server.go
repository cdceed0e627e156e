// Package server wires the HTTP surface: authentication, rate limiting,
// PII redaction, and the order/extraction/invoice handlers.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/chatorder/internal/invoice/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/chatorder/internal/apikey"
	"github.com/smallbiznis/chatorder/internal/auth"
	"github.com/smallbiznis/chatorder/internal/config"
	obslogger "github.com/smallbiznis/chatorder/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/chatorder/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/chatorder/internal/order/domain"
	orderservice "github.com/smallbiznis/chatorder/internal/order/service"
	orgdomain "github.com/smallbiznis/chatorder/internal/organization/domain"
	"github.com/smallbiznis/chatorder/internal/providers/blobstore"
	"github.com/smallbiznis/chatorder/internal/providers/pdf"
	"github.com/smallbiznis/chatorder/internal/ratelimit"
	"github.com/smallbiznis/chatorder/internal/worker"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InvoiceRenderer produces the downloadable PDF for an invoice.
type InvoiceRenderer interface {
	RenderInvoice(ctx context.Context, inv *invoicedomain.Invoice) ([]byte, error)
}

// BlobStore persists rendered invoices and signs download URLs.
type BlobStore interface {
	UploadInvoicePDF(ctx context.Context, orgID, invoiceNumber string, data []byte) (string, error)
	InvoiceURL(orgID, invoiceNumber string) (string, error)
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	db         *gorm.DB
	orders     orderdomain.Repository
	extractSvc *orderservice.Service
	authSvc    *auth.Service
	apiKeys    *apikey.Service
	limiter    *ratelimit.Limiter
	queues     *worker.Queues
	renderer   InvoiceRenderer
	blobs      BlobStore
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	DB         *gorm.DB
	Orders     orderdomain.Repository
	ExtractSvc *orderservice.Service
	AuthSvc    *auth.Service
	APIKeys    *apikey.Service
	Limiter    *ratelimit.Limiter
	Queues     *worker.Queues
	Renderer   *pdf.Renderer
	Blobs      *blobstore.Store
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		db:         p.DB,
		orders:     p.Orders,
		extractSvc: p.ExtractSvc,
		authSvc:    p.AuthSvc,
		apiKeys:    p.APIKeys,
		limiter:    p.Limiter,
		queues:     p.Queues,
		renderer:   p.Renderer,
		blobs:      p.Blobs,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	api.GET("/health", s.Health)

	authed := api.Group("", s.AuthRequired(), s.RateLimit())
	authed.GET("/jobs/:id", s.GetJob)
	authed.GET("/queue/health", s.QueueHealth)

	org := authed.Group("", s.RequireOrg(), s.RedactPII())

	org.GET("/stats", s.RequirePermission(orgdomain.PermViewAnalytics), s.Stats)

	org.GET("/orders", s.RequirePermission(orgdomain.PermViewOrders), s.ListOrders)
	org.GET("/orders/:id", s.RequirePermission(orgdomain.PermViewOrders), s.GetOrder)
	org.PATCH("/orders/:id", s.RequirePermission(orgdomain.PermEditOrders), s.UpdateOrderStatus)
	org.PATCH("/orders/:id/edit", s.RequirePermission(orgdomain.PermEditOrders), s.EditOrder)
	org.DELETE("/orders/:id", s.RequirePermission(orgdomain.PermDeleteOrders), s.DeleteOrder)

	org.POST("/extract", s.RequirePermission(orgdomain.PermEditOrders), s.ExtractSingle)
	org.POST("/extract-order", s.RequirePermission(orgdomain.PermEditOrders), s.ExtractChat)
	org.POST("/async/extract", s.RequirePermission(orgdomain.PermEditOrders), s.AsyncExtractSingle)
	org.POST("/async/extract-order", s.RequirePermission(orgdomain.PermEditOrders), s.AsyncExtractChat)

	org.POST("/generate-invoice", s.RequirePermission(orgdomain.PermEditOrders), s.GenerateInvoice)
	org.GET("/orders/:id/download", s.RequirePermission(orgdomain.PermViewOrders), s.DownloadInvoice)

	admin := org.Group("/admin")
	admin.GET("/dlq", s.RequirePermission(orgdomain.PermEditOrders), s.ListDLQ)
	admin.POST("/dlq/:jobId/retry", s.RequirePermission(orgdomain.PermEditOrders), s.RetryDLQJob)
	admin.POST("/dlq/retry-all", s.RequirePermission(orgdomain.PermEditOrders), s.RetryAllDLQ)

	// Key management lives outside the redaction group: the create response
	// must hand the raw key to the caller exactly once.
	keys := authed.Group("/admin/api-keys", s.RequireOrg(), s.RequirePermission(orgdomain.PermManageAPIKeys))
	keys.GET("", s.ListAPIKeys)
	keys.POST("", s.CreateAPIKey)
	keys.POST("/:id/revoke", s.RevokeAPIKey)
}

func NewEngine(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug: !cfg.IsProduction(),
	}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.Engine(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.Int("port", cfg.Port))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)
