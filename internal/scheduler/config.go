package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/pricebook/internal/config"
)

// Config controls the invoice run. An empty Spec disables scheduling.
type Config struct {
	Spec       string
	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Spec:       "0 2 1 * *",
		JobTimeout: 30 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	spec := strings.TrimSpace(cfg.InvoiceRunSchedule)
	if strings.EqualFold(spec, "off") {
		spec = ""
	}
	return Config{Spec: spec}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
