package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricebook/internal/clock"
	"github.com/smallbiznis/pricebook/internal/config"
	invoicedomain "github.com/smallbiznis/pricebook/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/pricebook/internal/invoice/repository"
	"github.com/smallbiznis/pricebook/internal/invoice/service"
	"github.com/smallbiznis/pricebook/internal/orgcontext"
	"github.com/smallbiznis/pricebook/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/pricebook/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/pricebook/internal/payment/repository"
	paymentservice "github.com/smallbiznis/pricebook/internal/payment/service"
	pricebookdomain "github.com/smallbiznis/pricebook/internal/pricebook/domain"
	pricebookrepository "github.com/smallbiznis/pricebook/internal/pricebook/repository"
	pricebookservice "github.com/smallbiznis/pricebook/internal/pricebook/service"
	pricingdomain "github.com/smallbiznis/pricebook/internal/pricing/domain"
	pricingrepository "github.com/smallbiznis/pricebook/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/pricebook/internal/pricing/service"
	pricingruledomain "github.com/smallbiznis/pricebook/internal/pricingrule/domain"
	pricingrulerepository "github.com/smallbiznis/pricebook/internal/pricingrule/repository"
	pricingruleservice "github.com/smallbiznis/pricebook/internal/pricingrule/service"
	"github.com/smallbiznis/pricebook/internal/ratelimit"
	ruleusagedomain "github.com/smallbiznis/pricebook/internal/ruleusage/domain"
	ruleusagerepository "github.com/smallbiznis/pricebook/internal/ruleusage/repository"
	ruleusageservice "github.com/smallbiznis/pricebook/internal/ruleusage/service"
	usagedomain "github.com/smallbiznis/pricebook/internal/usage/domain"
	usagerepository "github.com/smallbiznis/pricebook/internal/usage/repository"
	usageservice "github.com/smallbiznis/pricebook/internal/usage/service"
	"github.com/smallbiznis/pricebook/pkg/db/dbtest"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	now         = time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	periodStart = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)
)

type processorStub struct {
	adapters.Disabled

	invoices       []paymentdomain.ExternalInvoiceRequest
	lines          []paymentdomain.LineItemRequest
	finalized      []string
	paidOnFinalize bool
	outcome        *paymentdomain.PaymentOutcome
}

func (p *processorStub) Name() string { return "stub" }

func (p *processorStub) EnsureCustomer(_ context.Context, req paymentdomain.CustomerRequest) (string, error) {
	return "cus_" + req.OrgID.String(), nil
}

func (p *processorStub) CreateInvoice(_ context.Context, req paymentdomain.ExternalInvoiceRequest) (*paymentdomain.ExternalInvoice, error) {
	p.invoices = append(p.invoices, req)
	return &paymentdomain.ExternalInvoice{ID: "in_1", Status: "draft"}, nil
}

func (p *processorStub) AddLineItem(_ context.Context, req paymentdomain.LineItemRequest) error {
	p.lines = append(p.lines, req)
	return nil
}

func (p *processorStub) Finalize(_ context.Context, id string) (*paymentdomain.ExternalInvoice, error) {
	p.finalized = append(p.finalized, id)
	status := "open"
	if p.paidOnFinalize {
		status = "paid"
	}
	return &paymentdomain.ExternalInvoice{
		ID:        id,
		Status:    status,
		Paid:      p.paidOnFinalize,
		HostedURL: "https://pay.example/i/" + id,
	}, nil
}

func (p *processorStub) Pay(_ context.Context, _ string) (*paymentdomain.PaymentOutcome, error) {
	return p.outcome, nil
}

type fixture struct {
	db        *gorm.DB
	pricebook pricebookdomain.Service
	rules     pricingruledomain.Service
	usage     usagedomain.Service
	payments  paymentdomain.Service
	processor *processorStub
	invoices  invoicedomain.Service
}

func newFixture(t *testing.T, lock *ratelimit.InvoiceLock) *fixture {
	t.Helper()
	db := dbtest.Open(t,
		&pricebookdomain.Item{},
		&pricingruledomain.Rule{},
		&pricingruledomain.Condition{},
		&ruleusagedomain.Counter{},
		&pricingdomain.OrgSegment{},
		&usagedomain.UsageEvent{},
		&paymentdomain.Payment{},
		&paymentdomain.BillingCustomer{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
	)
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	log := zap.NewNop()

	f := &fixture{db: db, processor: &processorStub{}}
	f.pricebook = pricebookservice.New(pricebookservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: pricebookrepository.Provide(db),
	})
	f.rules = pricingruleservice.New(pricingruleservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: pricingrulerepository.Provide(),
	})
	counters := ruleusageservice.New(ruleusageservice.Params{
		DB: db, Log: log, Clock: clk, Repo: ruleusagerepository.Provide(),
	})
	pricing := pricingservice.New(pricingservice.Params{
		DB:        db,
		Log:       log,
		Clock:     clk,
		Repo:      pricingrepository.Provide(),
		Pricebook: f.pricebook,
		Rules:     f.rules,
		Usage:     counters,
		Billing:   config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})
	f.usage = usageservice.New(usageservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: usagerepository.Provide(db), Pricing: pricing,
	})
	f.payments = paymentservice.New(paymentservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: paymentrepository.Provide(db), Processor: f.processor,
	})

	cfg := config.Config{}
	cfg.Stripe.Currency = "USD"
	cfg.Stripe.Timeout = 5 * time.Second
	f.invoices = service.NewService(service.ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Cfg:       cfg,
		Repo:      invoicerepository.Provide(db),
		Usage:     f.usage,
		Pricing:   pricing,
		Payments:  f.payments,
		Processor: f.processor,
		Lock:      lock,
	})
	return f
}

func orgCtx(id int64) context.Context {
	return orgcontext.WithOrgID(context.Background(), snowflake.ID(id))
}

func (f *fixture) item(t *testing.T, code string, price int64) *pricebookdomain.Item {
	t.Helper()
	item, err := f.pricebook.Create(context.Background(), pricebookdomain.CreateRequest{
		Code:               code,
		Name:               code,
		BaseUnitPriceCents: price,
		BillingStrategy:    pricebookdomain.PerEvent,
	})
	require.NoError(t, err)
	return item
}

// mailboxOverride prices the mailbox item at 300 once five are billed together.
func (f *fixture) mailboxOverride(t *testing.T, mailbox *pricebookdomain.Item) *pricingruledomain.Rule {
	t.Helper()
	from := periodStart.AddDate(0, -1, 0)
	rule, err := f.rules.CreateRule(context.Background(), pricingruledomain.CreateRuleRequest{
		Name:            "bulk mailboxes",
		ScopeType:       pricingruledomain.ScopeItem,
		PricebookItemID: &mailbox.ID,
		RuleType:   pricingruledomain.OverridePrice,
		Value:      decimal.NewFromInt(300),
		ActiveFrom: &from,
		Conditions: []pricingruledomain.ConditionInput{
			{ConditionType: pricingruledomain.ConditionMinQuantity, Operator: pricingruledomain.OpGte, Value: json.RawMessage(`{"quantity":5}`)},
		},
	})
	require.NoError(t, err)
	return rule
}

func (f *fixture) record(t *testing.T, orgID int64, code string, quantity int64) {
	t.Helper()
	effective := periodStart.Add(48 * time.Hour)
	_, err := f.usage.Record(orgCtx(orgID), usagedomain.RecordRequest{
		Code:        code,
		Quantity:    quantity,
		EffectiveAt: &effective,
	})
	require.NoError(t, err)
}

func (f *fixture) generate(t *testing.T, orgID int64) *invoicedomain.Invoice {
	t.Helper()
	invoice, err := f.invoices.Generate(orgCtx(orgID), invoicedomain.GenerateRequest{PeriodStart: periodStart, PeriodEnd: periodEnd})
	require.NoError(t, err)
	return invoice
}

func TestGenerateAppliesOverrideToMailboxUsage(t *testing.T) {
	f := newFixture(t, nil)
	mailboxItem := f.item(t, "mailbox_created", 350)
	f.item(t, "api_call", 2)
	rule := f.mailboxOverride(t, mailboxItem)

	for i := 0; i < 5; i++ {
		f.record(t, 1, "mailbox_created", 1)
	}
	f.record(t, 1, "api_call", 40)

	invoice := f.generate(t, 1)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, "usd", invoice.Currency)
	require.Len(t, invoice.Items, 2)
	assert.Equal(t, int64(1500+80), invoice.TotalCents)

	stored, err := f.invoices.GetByID(orgCtx(1), invoice.ID.String())
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)

	api, mailbox := stored.Items[0], stored.Items[1]
	assert.Equal(t, "api_call", api.Code)
	assert.Equal(t, int64(80), api.TotalCents)
	assert.Nil(t, api.AppliedRuleID)

	assert.Equal(t, "mailbox_created", mailbox.Code)
	assert.Equal(t, int64(5), mailbox.Quantity)
	assert.Equal(t, int64(350), mailbox.BaseUnitPriceCents)
	assert.Equal(t, int64(300), mailbox.FinalUnitPriceCents)
	assert.Equal(t, int64(1500), mailbox.TotalCents)
	require.NotNil(t, mailbox.AppliedRuleID)
	assert.Equal(t, rule.ID, *mailbox.AppliedRuleID)

	var sum int64
	for _, item := range stored.Items {
		assert.Equal(t, item.FinalUnitPriceCents*item.Quantity, item.TotalCents)
		sum += item.TotalCents
	}
	assert.Equal(t, stored.TotalCents, sum)
}

func TestSummarizeSkipsDeactivatedItems(t *testing.T) {
	f := newFixture(t, nil)
	f.item(t, "mailbox_created", 350)
	legacy := f.item(t, "legacy_seat", 900)

	f.record(t, 1, "mailbox_created", 2)
	f.record(t, 1, "legacy_seat", 3)

	_, err := f.pricebook.Deactivate(context.Background(), legacy.ID.String())
	require.NoError(t, err)

	summary, err := f.usage.Summarize(context.Background(), snowflake.ID(1), periodStart, periodEnd)
	require.NoError(t, err)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, "mailbox_created", summary.Items[0].Code)
	assert.Equal(t, int64(700), summary.TotalCents)

	invoice := f.generate(t, 1)
	require.Len(t, invoice.Items, 1)
	assert.Equal(t, int64(700), invoice.TotalCents)
}

func TestGenerateWithoutUsageCreatesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.item(t, "mailbox_created", 350)
	f.record(t, 1, "unknown_code", 3)

	_, err := f.invoices.Generate(orgCtx(1), invoicedomain.GenerateRequest{PeriodStart: periodStart, PeriodEnd: periodEnd})
	assert.ErrorIs(t, err, invoicedomain.ErrNoUsageToInvoice)
	assert.Equal(t, errs.KindNoUsageToInvoice, errs.KindOf(err))

	var count int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGenerateValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.invoices.Generate(context.Background(), invoicedomain.GenerateRequest{PeriodStart: periodStart, PeriodEnd: periodEnd})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidOrganization)

	_, err = f.invoices.Generate(orgCtx(1), invoicedomain.GenerateRequest{PeriodStart: periodEnd, PeriodEnd: periodStart})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPeriod)
}

func TestGenerateRejectsDuplicateUntilVoided(t *testing.T) {
	f := newFixture(t, nil)
	f.item(t, "mailbox_created", 350)
	f.record(t, 1, "mailbox_created", 2)

	first := f.generate(t, 1)

	_, err := f.invoices.Generate(orgCtx(1), invoicedomain.GenerateRequest{PeriodStart: periodStart, PeriodEnd: periodEnd})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceAlreadyExists)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))

	_, err = f.invoices.Void(orgCtx(1), first.ID.String())
	require.NoError(t, err)

	second := f.generate(t, 1)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.TotalCents, second.TotalCents)
}

func TestGenerateWhileLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	lock := ratelimit.NewInvoiceLock(config.Config{}, client)

	f := newFixture(t, lock)
	f.item(t, "mailbox_created", 350)
	f.record(t, 1, "mailbox_created", 2)

	release, err := lock.Acquire(context.Background(), 1, periodStart, periodEnd)
	require.NoError(t, err)

	_, err = f.invoices.Generate(orgCtx(1), invoicedomain.GenerateRequest{PeriodStart: periodStart, PeriodEnd: periodEnd})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceGenerationInFlight)

	release()
	f.generate(t, 1)
}

func TestGenerateAllCollectsOutcomes(t *testing.T) {
	f := newFixture(t, nil)
	f.item(t, "mailbox_created", 350)
	f.record(t, 1, "mailbox_created", 1)
	f.record(t, 2, "unknown_code", 1)
	f.record(t, 3, "mailbox_created", 4)
	f.generate(t, 3)

	result, err := f.invoices.GenerateAll(context.Background(), periodStart, periodEnd)
	require.NoError(t, err)
	require.Len(t, result.Generated, 1)
	assert.Equal(t, snowflake.ID(1), result.Generated[0].OrganizationID)
	assert.Len(t, result.Skipped, 2)
	assert.Empty(t, result.Failed)
}

func TestSyncAndPay(t *testing.T) {
	f := newFixture(t, nil)
	f.mailboxOverride(t, f.item(t, "mailbox_created", 350))
	f.record(t, 1, "mailbox_created", 5)
	invoice := f.generate(t, 1)
	ctx := orgCtx(1)

	_, err := f.invoices.Pay(ctx, invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotSynced)

	synced, err := f.invoices.Sync(ctx, invoice.ID.String(), invoicedomain.SyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusOpen, synced.Status)
	require.NotNil(t, synced.ExternalInvoiceID)
	assert.Equal(t, "in_1", *synced.ExternalInvoiceID)

	require.Len(t, f.processor.invoices, 1)
	assert.Equal(t, "cus_1", f.processor.invoices[0].CustomerRef)
	assert.Equal(t, invoice.ID.String(), f.processor.invoices[0].Metadata["invoice_id"])
	require.Len(t, f.processor.lines, 1)
	assert.Equal(t, int64(300), f.processor.lines[0].UnitPriceCents)
	assert.Equal(t, int64(5), f.processor.lines[0].Quantity)
	assert.Empty(t, f.processor.finalized)

	_, err = f.invoices.Sync(ctx, invoice.ID.String(), invoicedomain.SyncRequest{})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceAlreadySynced)

	f.processor.outcome = &paymentdomain.PaymentOutcome{
		Paid:             false,
		InvoiceStatus:    "open",
		PaymentIntentRef: "pi_1",
		FailureMessage:   "Your card was declined.",
	}
	declined, err := f.invoices.Pay(ctx, invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusOpen, declined.Invoice.Status)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, declined.Payment.Status)
	assert.Equal(t, int64(1500), declined.Payment.AmountCents)

	f.processor.outcome = &paymentdomain.PaymentOutcome{
		Paid:             true,
		InvoiceStatus:    "paid",
		AmountCents:      1500,
		Currency:         "usd",
		PaymentIntentRef: "pi_1",
		ChargeRef:        "ch_1",
	}
	paid, err := f.invoices.Pay(ctx, invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Invoice.Status)
	assert.NotNil(t, paid.Invoice.PaidAt)
	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, paid.Payment.Status)
	assert.Equal(t, declined.Payment.ID, paid.Payment.ID, "same intent updates the payment")

	_, err = f.invoices.Void(ctx, invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	again, err := f.invoices.MarkPaid(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, again.Status)
}

func TestSyncAutoFinalizePaid(t *testing.T) {
	f := newFixture(t, nil)
	f.item(t, "mailbox_created", 350)
	f.record(t, 1, "mailbox_created", 2)
	invoice := f.generate(t, 1)
	f.processor.paidOnFinalize = true

	synced, err := f.invoices.Sync(orgCtx(1), invoice.ID.String(), invoicedomain.SyncRequest{AutoFinalize: true})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, synced.Status)
	assert.NotNil(t, synced.FinalizedAt)
	assert.Equal(t, "https://pay.example/i/in_1", synced.HostedInvoiceURL)
	assert.Equal(t, []string{"in_1"}, f.processor.finalized)

	list, err := f.payments.List(orgCtx(1), paymentdomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, list.Payments, 1)
	assert.Equal(t, int64(700), list.Payments[0].AmountCents)
	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, list.Payments[0].Status)
}

func TestCloseTransitions(t *testing.T) {
	f := newFixture(t, nil)
	f.item(t, "mailbox_created", 350)
	f.record(t, 1, "mailbox_created", 2)
	invoice := f.generate(t, 1)
	ctx := orgCtx(1)

	_, err := f.invoices.MarkPaid(context.Background(), invoice.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition, "drafts are never settled")

	_, err = f.invoices.Sync(ctx, invoice.ID.String(), invoicedomain.SyncRequest{})
	require.NoError(t, err)

	closed, err := f.invoices.MarkUncollectible(ctx, invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusUncollectible, closed.Status)

	_, err = f.invoices.Void(ctx, invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	_, err = f.invoices.Void(orgCtx(2), invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound, "other organizations cannot see the invoice")
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t, nil)
	f.item(t, "mailbox_created", 350)
	f.record(t, 1, "mailbox_created", 2)
	f.record(t, 2, "mailbox_created", 3)
	invoice := f.generate(t, 1)
	f.generate(t, 2)

	list, err := f.invoices.List(orgCtx(1), invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	require.Len(t, list.Invoices, 1)
	assert.Equal(t, invoice.ID, list.Invoices[0].ID)

	list, err = f.invoices.List(orgCtx(1), invoicedomain.ListInvoiceRequest{Status: "paid"})
	require.NoError(t, err)
	assert.Empty(t, list.Invoices)

	_, err = f.invoices.List(orgCtx(1), invoicedomain.ListInvoiceRequest{Status: "settled"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)

	_, err = f.invoices.GetByID(orgCtx(1), "not-a-number")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidInvoiceID)

	_, err = f.invoices.GetByID(orgCtx(2), invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	found, err := f.invoices.FindByExternalID(context.Background(), "in_missing")
	assert.Nil(t, found)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}
