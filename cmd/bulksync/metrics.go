package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"bulksync/internal/config"
	"bulksync/internal/metrics"
	"bulksync/internal/metrics/datadog"
)

// metricsBackend is the part of a backend the CLI owns: shutting it down.
type metricsBackend interface {
	Close() error
}

// Seams for tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		b, err := datadog.NewBackend(ctx, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	setMetricsBackend = func(b any) {
		mb, _ := b.(metrics.Backend)
		metrics.SetBackend(mb)
	}
)

// initMetrics installs the configured metrics backend. The returned cleanup
// is never nil; for Datadog it stops the flush loop and submits what is left.
func initMetrics(ctx context.Context, m config.Metrics, job string, log zerolog.Logger) (func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(m.Backend)) {
	case "", "none", "noop":
		return noop, nil

	case "datadog", "dd":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    job,
			Tags:       m.Tags,
			FlushEvery: m.FlushEvery,
		})
		if err != nil {
			return noop, fmt.Errorf("init datadog metrics: %w", err)
		}
		setMetricsBackend(b)
		log.Debug().Str("backend", "datadog").Str("job", job).Strs("tags", m.Tags).Msg("metrics: enabled")
		return func() {
			if err := b.Close(); err != nil {
				log.Warn().Err(err).Msg("metrics: datadog close error")
			}
			setMetricsBackend(nil)
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|datadog)", m.Backend)
	}
}
