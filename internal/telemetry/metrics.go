package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing, which keeps tests free of meter setup.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	QueryCounter        metric.Int64Counter
	RetrievalDuration   metric.Float64Histogram
	ConfidenceHistogram metric.Float64Histogram
	EscalationCounter   metric.Int64Counter
	IngestionDuration   metric.Float64Histogram
	TokensUsed          metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("omnichannel-rag-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queryCounter, err := meter.Int64Counter(
		"rag.queries.total",
		metric.WithDescription("Total answered queries"),
	)
	if err != nil {
		return nil, err
	}

	retrievalDuration, err := meter.Float64Histogram(
		"rag.retrieval.duration",
		metric.WithDescription("Per-retriever latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	confidenceHistogram, err := meter.Float64Histogram(
		"rag.confidence",
		metric.WithDescription("Answer confidence distribution"),
	)
	if err != nil {
		return nil, err
	}

	escalationCounter, err := meter.Int64Counter(
		"rag.escalations.total",
		metric.WithDescription("Answers flagged for human review"),
	)
	if err != nil {
		return nil, err
	}

	ingestionDuration, err := meter.Float64Histogram(
		"rag.ingestion.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		QueryCounter:        queryCounter,
		RetrievalDuration:   retrievalDuration,
		ConfidenceHistogram: confidenceHistogram,
		EscalationCounter:   escalationCounter,
		IngestionDuration:   ingestionDuration,
		TokensUsed:          tokensUsed,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordQuery records one answered query with its outcome band.
func (m *Metrics) RecordQuery(tenantID, outcome string, cacheHit bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tenant_id", tenantID),
		attribute.String("outcome", outcome),
		attribute.Bool("cache_hit", cacheHit),
	}
	m.QueryCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordRetrieval records one retriever leg's latency.
func (m *Metrics) RecordRetrieval(retriever string, seconds float64, degraded bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("retriever", retriever),
		attribute.Bool("degraded", degraded),
	}
	m.RetrievalDuration.Record(context.Background(), seconds, metric.WithAttributes(attrs...))
}

// RecordConfidence records the confidence of one answer.
func (m *Metrics) RecordConfidence(tenantID string, confidence float64) {
	if m == nil {
		return
	}
	m.ConfidenceHistogram.Record(context.Background(), confidence,
		metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}

// RecordEscalation counts an answer flagged for human review.
func (m *Metrics) RecordEscalation(tenantID, reason string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tenant_id", tenantID),
		attribute.String("reason", reason),
	}
	m.EscalationCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordIngestion records one document ingestion.
func (m *Metrics) RecordIngestion(tenantID, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tenant_id", tenantID),
		attribute.String("status", status),
	}
	m.IngestionDuration.Record(context.Background(), seconds, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("service", "gemini"),
	}
	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}
