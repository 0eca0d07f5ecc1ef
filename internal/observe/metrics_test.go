package observe

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttrs returns the int64 sum data points of name keyed by the value of
// attribute key.
func sumByAttrs(t *testing.T, rm metricdata.ResourceMetrics, name, key string) map[string]int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, met.Data)
	}
	out := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key(key))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "transcribe", StatusOK, 120*time.Millisecond)
	m.RecordStage(ctx, "transcribe", StatusError, 80*time.Millisecond)
	m.RecordDrop(ctx, "transcribe")

	rm := collect(t, reader)
	met := findMetric(rm, "kaiwa.stage.duration")
	if met == nil {
		t.Fatal("kaiwa.stage.duration not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("duration samples: got %+v, want one point with 2 samples", hist.DataPoints)
	}

	byStatus := sumByAttrs(t, rm, "kaiwa.stage.items", "status")
	if byStatus[StatusOK] != 1 || byStatus[StatusError] != 1 || byStatus[StatusDropped] != 1 {
		t.Errorf("items by status: got %v", byStatus)
	}
}

func TestCountersAndGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSegment(ctx, SegmentEmitted)
	m.RecordSegment(ctx, SegmentNoise)
	m.RecordSegment(ctx, SegmentNoise)
	m.RecordProviderError(ctx, "voicevox", "synthesis")

	depth := m.QueueObserver("utterances")
	depth(1)
	depth(1)
	depth(-1)

	m.RecordCapturePaused(true)
	m.RecordCapturePaused(false)
	m.RecordCapturePaused(true)

	rm := collect(t, reader)
	if got := sumByAttrs(t, rm, "kaiwa.segments", "outcome"); got[SegmentEmitted] != 1 || got[SegmentNoise] != 2 {
		t.Errorf("segments: got %v", got)
	}
	if got := sumByAttrs(t, rm, "kaiwa.provider.errors", "provider"); got["voicevox"] != 1 {
		t.Errorf("provider errors: got %v", got)
	}
	if got := sumByAttrs(t, rm, "kaiwa.queue.depth", "queue"); got["utterances"] != 1 {
		t.Errorf("queue depth: got %v", got)
	}
	if got := sumByAttrs(t, rm, "kaiwa.capture.paused", "none"); got[""] != 1 {
		t.Errorf("capture paused: got %v", got)
	}
}

func TestStage_End(t *testing.T) {
	m, reader := newTestMetrics(t)
	log := slog.New(slog.DiscardHandler)

	_, ok := StartStage(context.Background(), m, log, "dialogue")
	ok.End(nil)
	ok.End(errors.New("second end is ignored"))

	_, failed := StartStage(context.Background(), m, log, "dialogue")
	failed.End(errors.New("engine down"))

	_, dropped := StartStage(context.Background(), m, log, "dialogue")
	dropped.Drop("no reply")

	got := sumByAttrs(t, collect(t, reader), "kaiwa.stage.items", "status")
	if got[StatusOK] != 1 || got[StatusError] != 1 || got[StatusDropped] != 1 {
		t.Errorf("items by status: got %v", got)
	}
}

func TestStage_NilMetrics(t *testing.T) {
	_, st := StartStage(context.Background(), nil, nil, "playback")
	st.End(nil)
	if st.Elapsed() < 0 {
		t.Fatal("negative elapsed time")
	}
}
