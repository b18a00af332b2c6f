package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"seep/internal/types"
)

const (
	defaultFlushInterval = 15 * time.Second
	defaultBatchSize     = 20
	defaultBufferSize    = 1000
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchOptions tunes the batching collector.
type CloudWatchOptions struct {
	Namespace     string
	FlushInterval time.Duration
	BatchSize     int
	BufferSize    int
	Logger        *slog.Logger
}

// CloudWatchCollector buffers datums and publishes them in batches from a
// background goroutine. Recording never blocks: datums are dropped when the
// buffer is full.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger

	datums chan cwtypes.MetricDatum
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

var _ Collector = (*CloudWatchCollector)(nil)

// NewCloudWatchCollector starts the background publisher.
func NewCloudWatchCollector(client CloudWatchClient, opts CloudWatchOptions) *CloudWatchCollector {
	if opts.Namespace == "" {
		opts.Namespace = types.MetricNamespace
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &CloudWatchCollector{
		client:    client,
		namespace: opts.Namespace,
		batchSize: opts.BatchSize,
		interval:  opts.FlushInterval,
		logger:    opts.Logger,
		datums:    make(chan cwtypes.MetricDatum, opts.BufferSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		dim(types.DimMethod, method),
		dim(types.DimEndpoint, endpoint),
		dim(types.DimStatus, status),
	}
	c.enqueue(datum(types.MetricAPILatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, dims))
	c.enqueue(datum(types.MetricAPIRequestCount, 1, cwtypes.StandardUnitCount, dims))
}

func (c *CloudWatchCollector) RecordPlanEvent(plan, event string) {
	c.enqueue(datum(types.MetricPlanEvent, 1, cwtypes.StandardUnitCount, []cwtypes.Dimension{
		dim(types.DimPlan, plan),
		dim(types.DimEvent, event),
	}))
}

func (c *CloudWatchCollector) RecordExternalFailure(provider string) {
	c.enqueue(datum(types.MetricExternalAPIFailure, 1, cwtypes.StandardUnitCount, []cwtypes.Dimension{
		dim(types.DimProvider, provider),
	}))
}

// Handler returns nil; CloudWatch is push-based.
func (c *CloudWatchCollector) Handler() http.Handler { return nil }

// Close stops the publisher after a final flush, or when ctx ends.
func (c *CloudWatchCollector) Close(ctx context.Context) error {
	c.once.Do(func() { close(c.stop) })
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CloudWatchCollector) enqueue(d cwtypes.MetricDatum) {
	select {
	case c.datums <- d:
	default:
		c.logger.Warn("metric buffer full, dropping datum", "metric", aws.ToString(d.MetricName))
	}
}

func (c *CloudWatchCollector) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	batch := make([]cwtypes.MetricDatum, 0, c.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		c.publish(batch)
		batch = make([]cwtypes.MetricDatum, 0, c.batchSize)
	}

	for {
		select {
		case d := <-c.datums:
			batch = append(batch, d)
			if len(batch) >= c.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-c.stop:
			// Drain whatever is already buffered.
			for {
				select {
				case d := <-c.datums:
					batch = append(batch, d)
					if len(batch) >= c.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (c *CloudWatchCollector) publish(batch []cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: batch,
	})
	if err != nil {
		c.logger.Error("failed to publish metrics",
			"error", err.Error(),
			"datums", len(batch),
		)
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func datum(name string, value float64, unit cwtypes.StandardUnit, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(time.Now().UTC()),
		Dimensions: dims,
	}
}
