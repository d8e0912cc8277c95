package cloudwatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/skyoxu/myguild-sub003/internal/application/port"
	"github.com/skyoxu/myguild-sub003/internal/resilience"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

type fakeLogsClient struct {
	putInputs []*cloudwatchlogs.PutLogEventsInput
	putErr    error
	nextToken *string
}

func (c *fakeLogsClient) PutLogEvents(ctx context.Context, input *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	if c.putErr != nil {
		return nil, c.putErr
	}
	c.putInputs = append(c.putInputs, input)
	return &cloudwatchlogs.PutLogEventsOutput{NextSequenceToken: c.nextToken}, nil
}

func (c *fakeLogsClient) CreateLogGroup(ctx context.Context, input *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	return &cloudwatchlogs.CreateLogGroupOutput{}, nil
}

func (c *fakeLogsClient) CreateLogStream(ctx context.Context, input *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func newTestDecisionLog(client logEventsAPI, bufferCap int) (*DecisionLogPublisher, *resilience.Registry) {
	registry := resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
	})

	p := newDecisionLogPublisher(client, DecisionLogConfig{
		LogGroupName:  "/opscore/decisions",
		LogStreamName: "gate",
		BufferCap:     bufferCap,
		FlushInterval: time.Hour,
	}, registry.Get("cloudwatch-logs"), logger.New("error"))

	return p, registry
}

func entryAt(msg string, at time.Time) port.LogEntry {
	return port.LogEntry{Timestamp: at, Level: "info", Message: msg}
}

func TestDecisionLogDeliversOrderedEvents(t *testing.T) {
	client := &fakeLogsClient{nextToken: aws.String("tok-1")}
	p, _ := newTestDecisionLog(client, 100)

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	// Out of order on purpose.
	_ = p.Publish(context.Background(), entryAt("second", base.Add(time.Second)))
	_ = p.Publish(context.Background(), entryAt("first", base))

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(client.putInputs) != 1 {
		t.Fatalf("requests = %d, want 1", len(client.putInputs))
	}
	events := client.putInputs[0].LogEvents
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if *events[0].Timestamp > *events[1].Timestamp {
		t.Error("events not ordered by timestamp")
	}
	if p.Buffered() != 0 {
		t.Errorf("buffer depth = %d after successful flush", p.Buffered())
	}
}

func TestDecisionLogBuffersWhileBreakerOpen(t *testing.T) {
	client := &fakeLogsClient{putErr: errors.New("connection reset")}
	p, registry := newTestDecisionLog(client, 100)

	base := time.Now()
	_ = p.Publish(context.Background(), entryAt("a", base))

	// Two failed flushes trip the threshold-2 breaker.
	for i := 0; i < 2; i++ {
		if err := p.Flush(context.Background()); err == nil {
			t.Fatal("expected flush failure")
		}
	}

	snap := registry.Get("cloudwatch-logs").Snapshot()
	if snap.State != resilience.StateOpen {
		t.Fatalf("breaker state = %s, want open", snap.State)
	}

	// Entries keep accumulating; delivery is not attempted while open.
	_ = p.Publish(context.Background(), entryAt("b", base.Add(time.Second)))
	err := p.Flush(context.Background())
	if !errors.Is(err, resilience.ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if p.Buffered() != 2 {
		t.Fatalf("buffer depth = %d, want 2 retained entries", p.Buffered())
	}
}

func TestDecisionLogDropsOldestOnOverflow(t *testing.T) {
	client := &fakeLogsClient{putErr: errors.New("down")}
	p, _ := newTestDecisionLog(client, 3)

	base := time.Now()
	for i := 0; i < 5; i++ {
		_ = p.Publish(context.Background(), entryAt("entry", base.Add(time.Duration(i)*time.Second)))
	}

	if p.Buffered() != 3 {
		t.Fatalf("buffer depth = %d, want cap 3", p.Buffered())
	}
	if p.Dropped() != 2 {
		t.Fatalf("dropped = %d, want 2", p.Dropped())
	}
}

func TestDecisionLogRecoversFromStaleSequenceToken(t *testing.T) {
	expected := aws.String("expected-token")
	client := &staleTokenClient{expected: expected}
	p, _ := newTestDecisionLog(client, 100)

	_ = p.Publish(context.Background(), entryAt("x", time.Now()))

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush should recover from a stale token, got %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("calls = %d, want rejected attempt plus corrected retry", client.calls)
	}
}

// staleTokenClient rejects the first attempt with the token CloudWatch
// actually expects.
type staleTokenClient struct {
	fakeLogsClient
	expected *string
	calls    int
}

func (c *staleTokenClient) PutLogEvents(ctx context.Context, input *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	c.calls++
	if c.calls == 1 {
		return nil, &cwltypes.InvalidSequenceTokenException{ExpectedSequenceToken: c.expected}
	}
	if input.SequenceToken == nil || *input.SequenceToken != *c.expected {
		return nil, errors.New("wrong sequence token")
	}
	return &cloudwatchlogs.PutLogEventsOutput{NextSequenceToken: aws.String("next")}, nil
}
