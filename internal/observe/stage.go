package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage times one item through one pipeline stage. It is the structured
// replacement for ad-hoc "took N ms" logging: every stage gets a span, a
// latency sample, a status count and one log line.
//
//	ctx, st := observe.StartStage(ctx, m, log, "transcribe")
//	text, err := t.Transcribe(ctx, seg)
//	st.End(err)
type Stage struct {
	name    string
	start   time.Time
	ctx     context.Context
	span    trace.Span
	metrics *Metrics
	log     *slog.Logger
	ended   bool
}

// StartStage begins timing stage. Pass the returned context to the work so
// that provider spans nest under the stage span. The stage's log line carries
// the span's trace and span ids; a nil log means slog.Default().
func StartStage(ctx context.Context, m *Metrics, log *slog.Logger, stage string) (context.Context, *Stage) {
	ctx, span := StartSpan(ctx, "stage."+stage, trace.WithAttributes(attribute.String("stage", stage)))
	return ctx, &Stage{
		name:    stage,
		start:   time.Now(),
		ctx:     ctx,
		span:    span,
		metrics: m,
		log:     Logger(ctx, log),
	}
}

// Elapsed returns the time since the stage started.
func (s *Stage) Elapsed() time.Duration { return time.Since(s.start) }

// End finishes the stage. A nil err records status "ok" and a debug line; a
// non-nil err records status "error", marks the span and logs a warning.
// Only the first End or Drop call has any effect.
func (s *Stage) End(err error, attrs ...slog.Attr) {
	if err != nil {
		s.finish(StatusError, err, attrs)
		return
	}
	s.finish(StatusOK, nil, attrs)
}

// Drop finishes the stage with status "dropped" for an item discarded by
// policy rather than by failure.
func (s *Stage) Drop(reason string, attrs ...slog.Attr) {
	s.finish(StatusDropped, nil, append(attrs, slog.String("reason", reason)))
}

// Abandon finishes the stage with status "abandoned" for work cut short by
// shutdown. It logs at debug only.
func (s *Stage) Abandon() {
	s.finish(StatusAbandoned, nil, nil)
}

func (s *Stage) finish(status string, err error, attrs []slog.Attr) {
	if s.ended {
		return
	}
	s.ended = true
	d := time.Since(s.start)

	if s.metrics != nil {
		s.metrics.RecordStage(s.ctx, s.name, status, d)
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.SetAttributes(attribute.String("status", status))
	s.span.End()

	base := []slog.Attr{
		slog.String("stage", s.name),
		slog.String("status", status),
		slog.Duration("elapsed", d),
	}
	base = append(base, attrs...)
	switch {
	case err != nil:
		base = append(base, slog.Any("err", err))
		s.log.LogAttrs(s.ctx, slog.LevelWarn, "stage failed", base...)
	case status == StatusDropped:
		s.log.LogAttrs(s.ctx, slog.LevelWarn, "stage dropped item", base...)
	default:
		s.log.LogAttrs(s.ctx, slog.LevelDebug, "stage finished", base...)
	}
}
