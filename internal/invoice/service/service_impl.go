package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/internal/clock"
	"github.com/smallbiznis/pricebook/internal/config"
	invoicedomain "github.com/smallbiznis/pricebook/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/pricebook/internal/observability/metrics"
	"github.com/smallbiznis/pricebook/internal/orgcontext"
	paymentdomain "github.com/smallbiznis/pricebook/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
	"github.com/smallbiznis/pricebook/internal/ratelimit"
	usagedomain "github.com/smallbiznis/pricebook/internal/usage/domain"
	"github.com/smallbiznis/pricebook/pkg/db/pagination"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       invoicedomain.Repository
	Usage      usagedomain.Service
	Pricing    pricingdomain.Service
	Payments   paymentdomain.Service
	Processor  paymentdomain.Processor
	Lock       *ratelimit.InvoiceLock `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	currency         string
	processorTimeout time.Duration

	repo       invoicedomain.Repository
	usage      usagedomain.Service
	pricing    pricingdomain.Service
	payments   paymentdomain.Service
	processor  paymentdomain.Processor
	lock       *ratelimit.InvoiceLock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	currency := strings.ToLower(strings.TrimSpace(p.Cfg.Stripe.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,

		currency:         currency,
		processorTimeout: p.Cfg.Stripe.Timeout,

		repo:       p.Repo,
		usage:      p.Usage,
		pricing:    p.Pricing,
		payments:   p.Payments,
		processor:  p.Processor,
		lock:       p.Lock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	filter := invoicedomain.ListFilter{OrganizationID: orgID, Page: req.Pagination}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status := invoicedomain.InvoiceStatus(strings.ToLower(raw))
		if !status.Valid() {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
		filter.Status = status
	}

	invoices, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		return invoicedomain.ListInvoiceResponse{}, errs.Persistence(err)
	}

	page, info := pagination.BuildCursorPageInfo(invoices, req.Size(), func(inv *invoicedomain.Invoice) string {
		return inv.ID.String()
	})
	return invoicedomain.ListInvoiceResponse{PageInfo: info, Invoices: page}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoice, err := s.loadInvoice(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, s.db, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *Service) FindByExternalID(ctx context.Context, externalID string) (*invoicedomain.Invoice, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	invoice, err := s.repo.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) orgIDFromContext(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return 0, invoicedomain.ErrInvalidOrganization
	}
	return orgID, nil
}

// loadInvoice resolves id within the organization in ctx.
func (s *Service) loadInvoice(ctx context.Context, db *gorm.DB, id string) (*invoicedomain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	invoice, err := s.repo.FindByID(ctx, db, orgID, invoiceID)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) attachItems(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	items, err := s.repo.ListItems(ctx, db, invoice.ID)
	if err != nil {
		return errs.Persistence(err)
	}
	invoice.Items = items
	return nil
}

func parseID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return snowflake.ParseString(raw)
}
