// Package telemetry records request, plan and upstream metrics to Prometheus
// or CloudWatch.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"seep/internal/config"
)

// Metrics backends.
const (
	BackendPrometheus = "prometheus"
	BackendCloudWatch = "cloudwatch"
	BackendNone       = "none"
)

// Collector is implemented by every backend.
type Collector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
	RecordPlanEvent(plan, event string)
	RecordExternalFailure(provider string)

	// Handler serves the scrape endpoint, or nil when the backend pushes.
	Handler() http.Handler

	// Close flushes buffered data.
	Close(ctx context.Context) error
}

// New builds the collector selected by cfg.MetricsBackend.
func New(ctx context.Context, cfg config.ObservabilityConfig, logger *slog.Logger) (Collector, error) {
	switch cfg.MetricsBackend {
	case BackendPrometheus, "":
		return NewPrometheusCollector(nil), nil
	case BackendCloudWatch:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("telemetry: load aws config: %w", err)
		}
		return NewCloudWatchCollector(cloudwatch.NewFromConfig(awsCfg), CloudWatchOptions{
			Namespace: cfg.MetricNamespace,
			Logger:    logger,
		}), nil
	case BackendNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("telemetry: unknown metrics backend %q", cfg.MetricsBackend)
	}
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordRequest(string, string, string, time.Duration) {}
func (Noop) RecordPlanEvent(string, string)                      {}
func (Noop) RecordExternalFailure(string)                        {}
func (Noop) Handler() http.Handler                               { return nil }
func (Noop) Close(context.Context) error                         { return nil }
