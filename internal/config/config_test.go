package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_SLOW_QUERY", "750ms")
	t.Setenv("STRIPE_TIMEOUT", "not-a-duration")
	t.Setenv("BILLING_CURRENCY", "EUR")
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", " HTTP ")
	t.Setenv("INVOICE_RUN_SCHEDULE", "off")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, 750*time.Millisecond, cfg.DBSlowQuery)
	assert.Equal(t, 15*time.Second, cfg.Stripe.Timeout)
	assert.Equal(t, "eur", cfg.Stripe.Currency)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "http", cfg.Tracing.Protocol)
	assert.Equal(t, "off", cfg.InvoiceRunSchedule)
	assert.False(t, cfg.RedisEnabled())
}

func TestStaticBillingConfigOrdersTiers(t *testing.T) {
	holder := NewStaticBillingConfigHolder(BillingConfig{Mailbox: MailboxPricing{
		BaseUnitPriceCents: 400,
		Tiers: []VolumeTier{
			{Label: "small", MinQuantity: 10, UnitPriceCents: 390},
			{Label: "large", MinQuantity: 500, UnitPriceCents: 300},
		},
	}})

	tiers := holder.Get().Mailbox.Tiers
	require.Len(t, tiers, 2)
	assert.Equal(t, "large", tiers[0].Label)
	assert.Equal(t, "small", tiers[1].Label)
}

func TestValidateBillingConfig(t *testing.T) {
	assert.NoError(t, validateBillingConfig(DefaultBillingConfig()))

	negative := DefaultBillingConfig()
	negative.Mailbox.BaseUnitPriceCents = -1
	assert.Error(t, validateBillingConfig(negative))

	zeroTier := DefaultBillingConfig()
	zeroTier.Mailbox.Tiers = append(zeroTier.Mailbox.Tiers, VolumeTier{Label: "free", MinQuantity: 0})
	assert.Error(t, validateBillingConfig(zeroTier))
}

func TestBillingConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	body := `billing:
  mailbox:
    baseUnitPriceCents: 500
    tiers:
      - label: bulk
        minQuantity: 50
        unitPriceCents: 450
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), []byte(body), 0o600))
	t.Chdir(dir)

	holder, err := NewBillingConfigHolder(zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, int64(500), cfg.Mailbox.BaseUnitPriceCents)
	require.Len(t, cfg.Mailbox.Tiers, 1)
	assert.Equal(t, VolumeTier{Label: "bulk", MinQuantity: 50, UnitPriceCents: 450}, cfg.Mailbox.Tiers[0])
}

func TestBillingConfigHolderDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewBillingConfigHolder(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultBillingConfig().Mailbox.BaseUnitPriceCents, holder.Get().Mailbox.BaseUnitPriceCents)
}
