package instrument

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LogInstrumenter writes one debug entry per finished span.
type LogInstrumenter struct {
	log *zap.Logger
}

func NewLogInstrumenter(log *zap.Logger) *LogInstrumenter {
	return &LogInstrumenter{log: log}
}

func (i *LogInstrumenter) StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	span := &LogSpan{
		log:          i.log,
		traceID:      GetTraceID(ctx),
		spanID:       newUUID(),
		parentSpanID: getParentSpanID(ctx),
		component:    component,
		action:       action,
		startTime:    time.Now(),
	}
	return withParentSpanID(ctx, span.spanID), span
}

// LogSpan implements Span on top of a zap logger.
type LogSpan struct {
	log          *zap.Logger
	traceID      string
	spanID       string
	parentSpanID string
	component    string
	action       string
	model        string
	recordID     string
	status       string
	startTime    time.Time
	metadata     []zap.Field

	mu    sync.Mutex
	ended bool
}

func (s *LogSpan) TraceID() string { return s.traceID }
func (s *LogSpan) SpanID() string  { return s.spanID }

func (s *LogSpan) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *LogSpan) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = append(s.metadata, zap.Any(key, value))
}

func (s *LogSpan) SetEntity(model, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
	s.recordID = recordID
}

func (s *LogSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true

	fields := []zap.Field{
		zap.String("trace_id", s.traceID),
		zap.String("span_id", s.spanID),
		zap.String("component", s.component),
		zap.String("action", s.action),
		zap.Duration("duration", time.Since(s.startTime)),
	}
	if s.parentSpanID != "" {
		fields = append(fields, zap.String("parent_span_id", s.parentSpanID))
	}
	if s.model != "" {
		fields = append(fields, zap.String("model", s.model))
	}
	if s.recordID != "" {
		fields = append(fields, zap.String("record_id", s.recordID))
	}
	if s.status != "" {
		fields = append(fields, zap.String("status", s.status))
	}
	s.log.Debug("span", append(fields, s.metadata...)...)
}
