package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/skyoxu/myguild-sub003/internal/application/port"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

const (
	// CloudWatch caps PutMetricData at 1000 data points per request.
	maxDataPerRequest = 1000
	maxPutRetries     = 3
	initialBackoff    = 100 * time.Millisecond
)

// metricDataAPI is the slice of the CloudWatch client the publisher uses.
type metricDataAPI interface {
	PutMetricData(ctx context.Context, input *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// GaugePublisherConfig holds configuration for CloudWatch gauge publishing.
type GaugePublisherConfig struct {
	Namespace         string            // CloudWatch namespace (e.g., "OpsCore/ControlPlane")
	Region            string            // AWS region
	Endpoint          string            // Optional endpoint override (for LocalStack)
	AccessKeyID       string            // AWS access key
	SecretAccessKey   string            // AWS secret key
	DefaultDimensions map[string]string // Dimensions stamped on every gauge
	BufferSize        int               // Buffer size before auto-flush
	FlushInterval     time.Duration     // Automatic flush interval
}

// GaugePublisher ships control-plane gauges to CloudWatch in batches.
// Implements port.TelemetrySink.
type GaugePublisher struct {
	client            metricDataAPI
	namespace         string
	defaultDimensions map[string]string
	log               *logger.Logger

	mu         sync.Mutex
	buffer     []port.Gauge
	bufferSize int

	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewGaugePublisher connects to CloudWatch and starts the background flusher.
func NewGaugePublisher(ctx context.Context, cfg GaugePublisherConfig, log *logger.Logger) (*GaugePublisher, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := newGaugePublisher(cloudwatch.NewFromConfig(awsCfg), cfg, log)

	p.wg.Add(1)
	go p.flushLoop(cfg.FlushInterval)

	return p, nil
}

// newGaugePublisher wires the struct without starting the flusher. Tests use
// it directly with a fake client.
func newGaugePublisher(client metricDataAPI, cfg GaugePublisherConfig, log *logger.Logger) *GaugePublisher {
	return &GaugePublisher{
		client:            client,
		namespace:         cfg.Namespace,
		defaultDimensions: cfg.DefaultDimensions,
		log:               log,
		buffer:            make([]port.Gauge, 0, cfg.BufferSize),
		bufferSize:        cfg.BufferSize,
		flushTicker:       time.NewTicker(cfg.FlushInterval),
		stopCh:            make(chan struct{}),
	}
}

// PublishGauges buffers gauges and auto-flushes once the buffer fills.
func (p *GaugePublisher) PublishGauges(ctx context.Context, gauges []port.Gauge) error {
	if len(gauges) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, g := range gauges {
		p.buffer = append(p.buffer, g)

		if len(p.buffer) >= p.bufferSize {
			if err := p.flushLocked(ctx); err != nil {
				return fmt.Errorf("failed to flush buffer: %w", err)
			}
		}
	}

	return nil
}

// Flush forces immediate publication of all buffered gauges.
func (p *GaugePublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flushLocked(ctx)
}

// Close stops the background flusher and drains the buffer.
func (p *GaugePublisher) Close(ctx context.Context) error {
	close(p.stopCh)
	p.flushTicker.Stop()
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *GaugePublisher) flushLoop(interval time.Duration) {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := p.Flush(ctx); err != nil {
				p.log.Warn("Periodic gauge flush failed", "error", err.Error())
			}
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

// flushLocked flushes the buffer; the caller must hold the mutex.
func (p *GaugePublisher) flushLocked(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	data := make([]types.MetricDatum, 0, len(p.buffer))
	for _, g := range p.buffer {
		data = append(data, p.convertToDatum(g))
	}

	for i := 0; i < len(data); i += maxDataPerRequest {
		end := i + maxDataPerRequest
		if end > len(data) {
			end = len(data)
		}

		if err := p.putWithRetry(ctx, data[i:end]); err != nil {
			return fmt.Errorf("failed to publish chunk: %w", err)
		}
	}

	p.buffer = p.buffer[:0]

	return nil
}

// putWithRetry publishes one chunk with exponential backoff.
func (p *GaugePublisher) putWithRetry(ctx context.Context, data []types.MetricDatum) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxPutRetries; attempt++ {
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data,
		}

		_, err := p.client.PutMetricData(ctx, input)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < maxPutRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxPutRetries, lastErr)
}

// convertToDatum maps one gauge onto a CloudWatch MetricDatum.
func (p *GaugePublisher) convertToDatum(g port.Gauge) types.MetricDatum {
	dimensions := make([]types.Dimension, 0, len(p.defaultDimensions)+len(g.Dimensions))
	for key, value := range p.defaultDimensions {
		dimensions = append(dimensions, types.Dimension{
			Name:  aws.String(key),
			Value: aws.String(value),
		})
	}
	for key, value := range g.Dimensions {
		dimensions = append(dimensions, types.Dimension{
			Name:  aws.String(key),
			Value: aws.String(value),
		})
	}

	at := g.At
	if at.IsZero() {
		at = time.Now()
	}

	return types.MetricDatum{
		MetricName: aws.String(g.Name),
		Value:      aws.Float64(g.Value),
		Unit:       mapUnit(g.Unit),
		Timestamp:  aws.Time(at),
		Dimensions: dimensions,
	}
}

// mapUnit maps gauge units to CloudWatch StandardUnit.
func mapUnit(unit string) types.StandardUnit {
	switch unit {
	case "%":
		return types.StandardUnitPercent
	case "ms":
		return types.StandardUnitMilliseconds
	case "s":
		return types.StandardUnitSeconds
	case "count":
		return types.StandardUnitCount
	default:
		return types.StandardUnitNone
	}
}

// buildAWSConfig creates an AWS config with optional static credentials and
// endpoint override.
func buildAWSConfig(ctx context.Context, region, endpoint, accessKeyID, secretAccessKey string) (aws.Config, error) {
	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	if accessKeyID != "" && secretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}

	return cfg, nil
}
