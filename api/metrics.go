package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "snackbar-api"

	txnEventName   = "pos.transaction.request"
	txnEventDomain = "pos"
	txnSpanName    = "pos.transaction"
	txnRoute       = "/api/transactions"
)

// txnRequestMetrics tracks one transaction request end to end and emits a
// single observability event plus an otel span when the request finishes.
type txnRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	decodeDuration  time.Duration
	persistDuration time.Duration
	encodeDuration  time.Duration
	kind            string
	duplicate       bool
	errorStage      string
}

func newTxnRequestMetrics(ctx context.Context, logger *log.Logger) (*txnRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, txnSpanName)
	return &txnRequestMetrics{logger: logger, span: span, start: time.Now()}, spanCtx
}

func (m *txnRequestMetrics) ObserveDecode(d time.Duration) {
	m.decodeDuration = d
}

func (m *txnRequestMetrics) ObservePersist(d time.Duration) {
	m.persistDuration = d
}

func (m *txnRequestMetrics) ObserveEncode(d time.Duration) {
	m.encodeDuration = d
}

func (m *txnRequestMetrics) SetKind(kind string) {
	m.kind = kind
}

func (m *txnRequestMetrics) SetDuplicate(dup bool) {
	m.duplicate = dup
}

func (m *txnRequestMetrics) SetErrorStage(stage string) {
	if m.errorStage == "" {
		m.errorStage = stage
	}
}

// Log finalizes the span and writes the observability event. It must be
// called exactly once, after the response status is known.
func (m *txnRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))

	logAttrs := map[string]any{
		"http.route":        txnRoute,
		"pos.txn.total_ms":  totalMs,
		"pos.txn.duplicate": m.duplicate,
	}
	spanAttrs := []attribute.KeyValue{
		attribute.String("http.route", txnRoute),
		attribute.Float64("pos.txn.total_ms", totalMs),
		attribute.Bool("pos.txn.duplicate", m.duplicate),
	}
	if m.kind != "" {
		logAttrs["pos.txn.kind"] = m.kind
		spanAttrs = append(spanAttrs, attribute.String("pos.txn.kind", m.kind))
	}
	if m.decodeDuration > 0 {
		ms := durationToMillis(m.decodeDuration)
		logAttrs["pos.txn.decode_ms"] = ms
		spanAttrs = append(spanAttrs, attribute.Float64("pos.txn.decode_ms", ms))
	}
	if m.persistDuration > 0 {
		ms := durationToMillis(m.persistDuration)
		logAttrs["pos.txn.persist_ms"] = ms
		spanAttrs = append(spanAttrs, attribute.Float64("pos.txn.persist_ms", ms))
	}
	if m.encodeDuration > 0 {
		ms := durationToMillis(m.encodeDuration)
		logAttrs["pos.txn.encode_ms"] = ms
		spanAttrs = append(spanAttrs, attribute.Float64("pos.txn.encode_ms", ms))
	}
	if m.errorStage != "" {
		logAttrs["pos.txn.error_stage"] = m.errorStage
		spanAttrs = append(spanAttrs, attribute.String("pos.txn.error_stage", m.errorStage))
	}

	severityText, severityNumber := severityForStatus(status, err)

	eventAttrs := make([]attribute.KeyValue, 0, len(spanAttrs)+5)
	eventAttrs = append(eventAttrs,
		attribute.String("event.name", txnEventName),
		attribute.String("event.domain", txnEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	)
	eventAttrs = append(eventAttrs, spanAttrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}

	m.span.SetAttributes(append(spanAttrs, attribute.Int("http.status_code", status))...)
	m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
	if err != nil || status >= http.StatusInternalServerError {
		desc := http.StatusText(status)
		if err != nil {
			desc = err.Error()
		}
		m.span.SetStatus(codes.Error, desc)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()

	fields := log.Fields{
		"event.name":      txnEventName,
		"event.domain":    txnEventDomain,
		"attributes":      logAttrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
