package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/pricebook/internal/clock"
	"github.com/smallbiznis/pricebook/internal/config"
	invoicedomain "github.com/smallbiznis/pricebook/internal/invoice/domain"
	obslogger "github.com/smallbiznis/pricebook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pricebook/internal/observability/metrics"
	obstracing "github.com/smallbiznis/pricebook/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/pricebook/internal/payment/domain"
	pricebookdomain "github.com/smallbiznis/pricebook/internal/pricebook/domain"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
	pricingruledomain "github.com/smallbiznis/pricebook/internal/pricingrule/domain"
	usagedomain "github.com/smallbiznis/pricebook/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if p.Cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	SetupValidator()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(p.Log, classifyErrorForLog))
	r.Use(obstracing.GinMiddleware(p.Cfg.AppName))
	r.Use(p.Metrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	clock        clock.Clock
	pricebookSvc pricebookdomain.Service
	ruleSvc      pricingruledomain.Service
	pricingSvc   pricingdomain.Service
	usageSvc     usagedomain.Service
	invoiceSvc   invoicedomain.Service
	paymentSvc   paymentdomain.Service
	webhookSvc   paymentdomain.NotificationHandler
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Clock        clock.Clock
	PricebookSvc pricebookdomain.Service
	RuleSvc      pricingruledomain.Service
	PricingSvc   pricingdomain.Service
	UsageSvc     usagedomain.Service
	InvoiceSvc   invoicedomain.Service
	PaymentSvc   paymentdomain.Service
	WebhookSvc   paymentdomain.NotificationHandler
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http"),
		clock:        p.Clock,
		pricebookSvc: p.PricebookSvc,
		ruleSvc:      p.RuleSvc,
		pricingSvc:   p.PricingSvc,
		usageSvc:     p.UsageSvc,
		invoiceSvc:   p.InvoiceSvc,
		paymentSvc:   p.PaymentSvc,
		webhookSvc:   p.WebhookSvc,
	}
	s.RegisterRoutes()
	return s
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	s.engine.POST("/webhooks/stripe", s.HandleStripeWebhook)

	api := s.engine.Group("/api/v1", s.OrgContext())

	items := api.Group("/pricebook/items")
	items.POST("", s.CreatePricebookItem)
	items.GET("", s.ListPricebookItems)
	items.GET("/:id", s.GetPricebookItem)
	items.PATCH("/:id", s.UpdatePricebookItem)
	items.POST("/:id/deactivate", s.DeactivatePricebookItem)

	rules := api.Group("/pricing-rules")
	rules.POST("", s.CreatePricingRule)
	rules.GET("", s.ListPricingRules)
	rules.GET("/:id", s.GetPricingRule)
	rules.PATCH("/:id", s.UpdatePricingRule)
	rules.DELETE("/:id", s.DeletePricingRule)
	rules.POST("/:id/conditions", s.AddPricingRuleCondition)
	rules.DELETE("/:id/conditions/:condition_id", s.RemovePricingRuleCondition)

	org := api.Group("", s.RequireOrg())

	org.POST("/pricing/quote", s.QuotePrice)
	org.POST("/pricing/mailbox-quote", s.QuoteMailbox)
	org.GET("/organization/segment", s.GetOrgSegment)
	org.PUT("/organization/segment", s.SetOrgSegment)

	org.POST("/usage", s.RecordUsage)
	org.GET("/usage", s.ListUsage)
	org.GET("/usage/summary", s.SummarizeUsage)

	org.POST("/invoices/generate", s.GenerateInvoice)
	org.GET("/invoices", s.ListInvoices)
	org.GET("/invoices/:id", s.GetInvoiceByID)
	org.POST("/invoices/:id/sync", s.SyncInvoice)
	org.POST("/invoices/:id/pay", s.PayInvoice)
	org.POST("/invoices/:id/void", s.VoidInvoice)
	org.POST("/invoices/:id/uncollectible", s.MarkInvoiceUncollectible)

	org.GET("/payments", s.ListPayments)
	org.GET("/payment-methods", s.ListPaymentMethods)
	org.DELETE("/payment-methods/:id", s.DetachPaymentMethod)

	api.POST("/invoices/generate-all", s.GenerateAllInvoices)
}
