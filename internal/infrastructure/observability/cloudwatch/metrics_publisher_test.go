package cloudwatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"github.com/skyoxu/myguild-sub003/internal/application/port"
	"github.com/skyoxu/myguild-sub003/pkg/logger"
)

type fakeMetricDataClient struct {
	inputs []*cloudwatch.PutMetricDataInput
	errs   []error
	calls  int
}

func (c *fakeMetricDataClient) PutMetricData(ctx context.Context, input *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	c.inputs = append(c.inputs, input)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func newTestGaugePublisher(client metricDataAPI, bufferSize int) *GaugePublisher {
	return newGaugePublisher(client, GaugePublisherConfig{
		Namespace:         "OpsCore/Test",
		DefaultDimensions: map[string]string{"Environment": "test"},
		BufferSize:        bufferSize,
		FlushInterval:     time.Hour,
	}, logger.New("error"))
}

func TestMapUnit(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected string
	}{
		{"percentage", "%", "Percent"},
		{"milliseconds", "ms", "Milliseconds"},
		{"seconds", "s", "Seconds"},
		{"count", "count", "Count"},
		{"unknown", "custom", "None"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := mapUnit(tt.unit); string(result) != tt.expected {
				t.Errorf("mapUnit(%q) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestGaugePublisherBuffersUntilFlush(t *testing.T) {
	client := &fakeMetricDataClient{}
	p := newTestGaugePublisher(client, 100)

	gauges := []port.Gauge{
		{Name: "SLOScore", Value: 92, Unit: "count"},
		{Name: "SamplingRate", Value: 0.08},
	}
	if err := p.PublishGauges(context.Background(), gauges); err != nil {
		t.Fatalf("PublishGauges: %v", err)
	}

	if client.calls != 0 {
		t.Fatalf("expected buffering, got %d requests", client.calls)
	}

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if client.calls != 1 {
		t.Fatalf("requests = %d, want 1", client.calls)
	}
	if got := len(client.inputs[0].MetricData); got != 2 {
		t.Fatalf("data points = %d, want 2", got)
	}
	if *client.inputs[0].Namespace != "OpsCore/Test" {
		t.Errorf("namespace = %s", *client.inputs[0].Namespace)
	}
}

func TestGaugePublisherAutoFlushesFullBuffer(t *testing.T) {
	client := &fakeMetricDataClient{}
	p := newTestGaugePublisher(client, 2)

	gauges := []port.Gauge{
		{Name: "a", Value: 1},
		{Name: "b", Value: 2},
		{Name: "c", Value: 3},
	}
	if err := p.PublishGauges(context.Background(), gauges); err != nil {
		t.Fatalf("PublishGauges: %v", err)
	}

	if client.calls != 1 {
		t.Fatalf("requests = %d, want 1 auto-flush", client.calls)
	}
	// The third gauge stays buffered for the next flush.
	if got := len(client.inputs[0].MetricData); got != 2 {
		t.Fatalf("flushed data points = %d, want 2", got)
	}
}

func TestGaugePublisherRetriesTransientErrors(t *testing.T) {
	client := &fakeMetricDataClient{errs: []error{errors.New("throttled"), nil}}
	p := newTestGaugePublisher(client, 100)

	if err := p.PublishGauges(context.Background(), []port.Gauge{{Name: "x", Value: 1}}); err != nil {
		t.Fatalf("PublishGauges: %v", err)
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush should succeed on retry, got %v", err)
	}

	if client.calls != 2 {
		t.Fatalf("requests = %d, want 2 (one failure, one retry)", client.calls)
	}
}

func TestConvertToDatumDimensions(t *testing.T) {
	p := newTestGaugePublisher(&fakeMetricDataClient{}, 100)

	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	datum := p.convertToDatum(port.Gauge{
		Name:       "DegradationLevel",
		Value:      2,
		Unit:       "count",
		At:         at,
		Dimensions: map[string]string{"Component": "orchestrator"},
	})

	if *datum.MetricName != "DegradationLevel" {
		t.Errorf("metric name = %s", *datum.MetricName)
	}
	if *datum.Value != 2 {
		t.Errorf("value = %v", *datum.Value)
	}
	if !datum.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", datum.Timestamp, at)
	}
	if len(datum.Dimensions) != 2 {
		t.Fatalf("dimensions = %d, want default + gauge", len(datum.Dimensions))
	}
}
