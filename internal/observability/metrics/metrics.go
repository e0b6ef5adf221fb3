package metrics

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/pricebook/internal/config"
	"github.com/smallbiznis/pricebook/pkg/errs"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

const (
	RedemptionAllowed   = "allowed"
	RedemptionExhausted = "exhausted"
)

// Metrics captures billing engine signals.
type Metrics struct {
	invoicesGenerated  *prometheus.CounterVec
	ruleRedemptions    *prometheus.CounterVec
	processorCalls     *prometheus.CounterVec
	processorDuration  *prometheus.HistogramVec
	paymentsRecorded   *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec
	jobRuns            *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
}

// New registers the billing collectors on registerer.
func New(registerer prometheus.Registerer, cfg config.Config) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "pricebook"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		invoicesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricebook_invoices_generated_total",
			Help:        "Invoice generation attempts by outcome kind.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		ruleRedemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricebook_rule_redemptions_total",
			Help:        "Pricing rule redemptions by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		processorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricebook_processor_calls_total",
			Help:        "External payment processor calls by operation and outcome.",
			ConstLabels: constLabels,
		}, []string{"operation", "outcome"}),
		processorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pricebook_processor_call_duration_seconds",
			Help:        "External payment processor call latency.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}, []string{"operation"}),
		paymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricebook_payments_recorded_total",
			Help:        "Payments recorded by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricebook_http_requests_total",
			Help:        "HTTP requests by route and status code.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status_code"}),
		httpRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pricebook_http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricebook_scheduler_job_runs_total",
			Help:        "Scheduled job runs by job and outcome.",
			ConstLabels: constLabels,
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pricebook_scheduler_job_duration_seconds",
			Help:        "Scheduled job duration.",
			Buckets:     []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
			ConstLabels: constLabels,
		}, []string{"job"}),
	}

	var err error
	if m.invoicesGenerated, err = register(registerer, m.invoicesGenerated); err != nil {
		return nil, err
	}
	if m.ruleRedemptions, err = register(registerer, m.ruleRedemptions); err != nil {
		return nil, err
	}
	if m.processorCalls, err = register(registerer, m.processorCalls); err != nil {
		return nil, err
	}
	if m.processorDuration, err = register(registerer, m.processorDuration); err != nil {
		return nil, err
	}
	if m.paymentsRecorded, err = register(registerer, m.paymentsRecorded); err != nil {
		return nil, err
	}
	if m.httpRequests, err = register(registerer, m.httpRequests); err != nil {
		return nil, err
	}
	if m.httpRequestLatency, err = register(registerer, m.httpRequestLatency); err != nil {
		return nil, err
	}
	if m.jobRuns, err = register(registerer, m.jobRuns); err != nil {
		return nil, err
	}
	if m.jobDuration, err = register(registerer, m.jobDuration); err != nil {
		return nil, err
	}

	return m, nil
}

// register returns the already registered collector when one exists.
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) (T, error) {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}

// RecordInvoiceGenerated counts a generation attempt; err nil means success.
func (m *Metrics) RecordInvoiceGenerated(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = string(errs.KindOf(err))
	}
	m.invoicesGenerated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRuleRedemption(result string) {
	if m == nil {
		return
	}
	m.ruleRedemptions.WithLabelValues(result).Inc()
}

// ObserveProcessorCall records one external processor call started at start.
func (m *Metrics) ObserveProcessorCall(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
	}
	m.processorCalls.WithLabelValues(operation, outcome).Inc()
	m.processorDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordPayment(status string) {
	if m == nil {
		return
	}
	m.paymentsRecorded.WithLabelValues(status).Inc()
}

// ObserveJob records one scheduled job run started at start.
func (m *Metrics) ObserveJob(job string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

// GinMiddleware records request counts and latency by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
