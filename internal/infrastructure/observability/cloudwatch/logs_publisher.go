package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/skyoxu/myguild-sub003/internal/application/port"
	"github.com/skyoxu/myguild-sub003/internal/resilience"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

const (
	// CloudWatch Logs limits.
	maxLogEventsPerRequest = 10000
	maxLogEventSize        = 256000 // 256 KB

	// defaultBufferCap bounds the local buffer while the sink is down.
	defaultBufferCap = 1000
)

// logEventsAPI is the slice of the CloudWatch Logs client the publisher uses.
type logEventsAPI interface {
	PutLogEvents(ctx context.Context, input *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogGroup(ctx context.Context, input *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, input *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
}

// DecisionLogConfig holds configuration for the CloudWatch decision log.
type DecisionLogConfig struct {
	LogGroupName    string
	LogStreamName   string
	Region          string
	Endpoint        string // Optional endpoint override (for LocalStack)
	AccessKeyID     string
	SecretAccessKey string
	BufferCap       int // Local buffer bound while the sink is down
	FlushInterval   time.Duration
	AutoCreate      bool // Create log group/stream if missing
}

// DecisionLogPublisher ships the decision audit trail to CloudWatch Logs.
// Implements port.DecisionLog.
//
// Delivery is guarded by a circuit breaker: while the sink is failing,
// entries keep accumulating in the bounded local buffer (dropping the oldest
// on overflow) and delivery is not attempted until the breaker lets a probe
// through. Publish therefore never blocks on a down sink.
type DecisionLogPublisher struct {
	client        logEventsAPI
	logGroupName  string
	logStreamName string
	breaker       *resilience.Breaker
	log           *logger.Logger

	mu        sync.Mutex
	buffer    []port.LogEntry
	bufferCap int
	dropped   int

	sequenceToken *string

	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewDecisionLogPublisher connects to CloudWatch Logs and starts the
// background flusher. The breaker is owned by the shared registry so the
// gate's logging-health check observes the same state.
func NewDecisionLogPublisher(ctx context.Context, cfg DecisionLogConfig, breaker *resilience.Breaker, log *logger.Logger) (*DecisionLogPublisher, error) {
	if cfg.LogGroupName == "" {
		return nil, fmt.Errorf("log group name is required")
	}
	if cfg.LogStreamName == "" {
		return nil, fmt.Errorf("log stream name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := newDecisionLogPublisher(cloudwatchlogs.NewFromConfig(awsCfg), cfg, breaker, log)

	if cfg.AutoCreate {
		if err := p.ensureLogGroupAndStream(ctx); err != nil {
			return nil, fmt.Errorf("failed to create log group/stream: %w", err)
		}
	}

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

// newDecisionLogPublisher wires the struct without starting the flusher.
// Tests use it directly with a fake client.
func newDecisionLogPublisher(client logEventsAPI, cfg DecisionLogConfig, breaker *resilience.Breaker, log *logger.Logger) *DecisionLogPublisher {
	if cfg.BufferCap <= 0 {
		cfg.BufferCap = defaultBufferCap
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	return &DecisionLogPublisher{
		client:        client,
		logGroupName:  cfg.LogGroupName,
		logStreamName: cfg.LogStreamName,
		breaker:       breaker,
		log:           log,
		buffer:        make([]port.LogEntry, 0, cfg.BufferCap),
		bufferCap:     cfg.BufferCap,
		flushTicker:   time.NewTicker(cfg.FlushInterval),
		stopCh:        make(chan struct{}),
	}
}

// Publish buffers one entry. The oldest entry is dropped once the local
// buffer is full, so a dead sink costs memory-bounded history, never a stall.
func (p *DecisionLogPublisher) Publish(ctx context.Context, entry port.LogEntry) error {
	p.mu.Lock()
	if len(p.buffer) >= p.bufferCap {
		p.buffer = p.buffer[1:]
		p.dropped++
	}
	p.buffer = append(p.buffer, entry)
	full := len(p.buffer)*100 >= p.bufferCap*80
	p.mu.Unlock()

	if full {
		return p.Flush(ctx)
	}
	return nil
}

// Buffered returns the current local buffer depth.
func (p *DecisionLogPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Dropped returns how many entries were discarded to buffer overflow.
func (p *DecisionLogPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Flush attempts delivery of the buffered entries through the breaker.
func (p *DecisionLogPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flushLocked(ctx)
}

// Close stops the background flusher and attempts a final delivery.
func (p *DecisionLogPublisher) Close(ctx context.Context) error {
	close(p.stopCh)
	p.flushTicker.Stop()
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *DecisionLogPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := p.Flush(ctx); err != nil && !errors.Is(err, resilience.ErrBreakerOpen) {
				p.log.Warn("Periodic decision-log flush failed", "error", err.Error())
			}
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

// flushLocked delivers the buffer; the caller must hold the mutex. The buffer
// is kept intact on any failure so entries survive for the next attempt.
func (p *DecisionLogPublisher) flushLocked(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	// CloudWatch Logs requires events ordered by timestamp.
	sort.Slice(p.buffer, func(i, j int) bool {
		return p.buffer[i].Timestamp.Before(p.buffer[j].Timestamp)
	})

	events := make([]types.InputLogEvent, 0, len(p.buffer))
	for _, entry := range p.buffer {
		event, err := convertToLogEvent(entry)
		if err != nil {
			// Malformed entries are skipped, not allowed to wedge the batch.
			continue
		}
		events = append(events, event)
	}

	if len(events) == 0 {
		p.buffer = p.buffer[:0]
		return nil
	}

	// Consult the breaker only when there is something to deliver, so every
	// admitted probe gets its outcome recorded below.
	if err := p.breaker.Allow(); err != nil {
		return err
	}

	for i := 0; i < len(events); i += maxLogEventsPerRequest {
		end := i + maxLogEventsPerRequest
		if end > len(events) {
			end = len(events)
		}

		if err := p.putLogEvents(ctx, events[i:end]); err != nil {
			p.breaker.RecordFailure()
			return fmt.Errorf("failed to publish chunk: %w", err)
		}
	}

	p.breaker.RecordSuccess()
	p.buffer = p.buffer[:0]

	return nil
}

// putLogEvents sends one chunk, recovering once from a stale sequence token.
func (p *DecisionLogPublisher) putLogEvents(ctx context.Context, events []types.InputLogEvent) error {
	for attempt := 0; attempt < 2; attempt++ {
		input := &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(p.logGroupName),
			LogStreamName: aws.String(p.logStreamName),
			LogEvents:     events,
			SequenceToken: p.sequenceToken,
		}

		output, err := p.client.PutLogEvents(ctx, input)
		if err == nil {
			p.sequenceToken = output.NextSequenceToken
			return nil
		}

		var invalidSeq *types.InvalidSequenceTokenException
		if errors.As(err, &invalidSeq) {
			p.sequenceToken = invalidSeq.ExpectedSequenceToken
			continue
		}

		return err
	}

	return fmt.Errorf("sequence token did not converge")
}

// convertToLogEvent renders one entry as a structured JSON log event.
func convertToLogEvent(entry port.LogEntry) (types.InputLogEvent, error) {
	logData := map[string]interface{}{
		"timestamp": entry.Timestamp.Format(time.RFC3339Nano),
		"level":     entry.Level,
		"message":   entry.Message,
	}
	if len(entry.Fields) > 0 {
		logData["fields"] = entry.Fields
	}

	messageJSON, err := json.Marshal(logData)
	if err != nil {
		return types.InputLogEvent{}, fmt.Errorf("failed to marshal log entry: %w", err)
	}

	message := string(messageJSON)
	if len(message) > maxLogEventSize {
		message = message[:maxLogEventSize-3] + "..."
	}

	return types.InputLogEvent{
		Message:   aws.String(message),
		Timestamp: aws.Int64(entry.Timestamp.UnixMilli()),
	}, nil
}

// ensureLogGroupAndStream creates the log group and stream if missing.
func (p *DecisionLogPublisher) ensureLogGroupAndStream(ctx context.Context) error {
	_, err := p.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(p.logGroupName),
	})
	if err != nil {
		var alreadyExists *types.ResourceAlreadyExistsException
		if !errors.As(err, &alreadyExists) {
			return fmt.Errorf("failed to create log group: %w", err)
		}
	}

	_, err = p.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(p.logGroupName),
		LogStreamName: aws.String(p.logStreamName),
	})
	if err != nil {
		var alreadyExists *types.ResourceAlreadyExistsException
		if !errors.As(err, &alreadyExists) {
			return fmt.Errorf("failed to create log stream: %w", err)
		}
	}

	return nil
}
