package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"omnichannel-rag-platform/internal/ai"
	"omnichannel-rag-platform/internal/config"
	"omnichannel-rag-platform/internal/index"
	"omnichannel-rag-platform/internal/logger"
	"omnichannel-rag-platform/internal/telemetry"
	"omnichannel-rag-platform/models"
)

// GenerationFallbackResponse is used when retrieval succeeded but the
// generation backend is unavailable. Citations still ship so the caller has
// something actionable.
const GenerationFallbackResponse = "I found relevant sources but cannot compose an answer right now. Please review the cited passages."

// QueryOrchestrator runs the full answer pipeline: validate, check the
// cache, embed, retrieve sparse and dense in parallel, fuse, score, band and
// generate. Upstream failures degrade the answer instead of failing the
// request; only tenant isolation violations and malformed input surface as
// errors.
type QueryOrchestrator struct {
	registry  *index.Registry
	sparse    *SparseRetriever
	dense     *DenseRetriever
	scorer    *ConfidenceScorer
	assembler *AnswerAssembler
	policies  PolicyProvider
	embedder  ai.Embedder
	generator ai.Generator
	quotas    *ai.QuotaManager
	cache     *AnswerCache
	metrics   *telemetry.Metrics

	topK             int
	rrfK             int
	maxQueryLength   int
	retrievalTimeout time.Duration
}

// ErrInvalidQuery covers malformed input: empty tenant or empty query.
var ErrInvalidQuery = errors.New("invalid query")

func NewQueryOrchestrator(
	cfg *config.Config,
	registry *index.Registry,
	policies PolicyProvider,
	embedder ai.Embedder,
	generator ai.Generator,
	quotas *ai.QuotaManager,
	cache *AnswerCache,
	metrics *telemetry.Metrics,
) *QueryOrchestrator {
	return &QueryOrchestrator{
		registry:         registry,
		sparse:           NewSparseRetriever(),
		dense:            NewDenseRetriever(),
		scorer:           NewConfidenceScorer(cfg.ConfidenceTopWeight, cfg.ConfidenceGapWeight, cfg.RRFConstant),
		assembler:        NewAnswerAssembler(cfg.TopK, cfg.CitationDocCap),
		policies:         policies,
		embedder:         embedder,
		generator:        generator,
		quotas:           quotas,
		cache:            cache,
		metrics:          metrics,
		topK:             cfg.TopK,
		rrfK:             cfg.RRFConstant,
		maxQueryLength:   cfg.MaxQueryLength,
		retrievalTimeout: cfg.RetrievalTimeout,
	}
}

type retrievalLeg struct {
	name    string
	results []models.RetrievalResult
	err     error
}

// AnswerQuery answers one query for one tenant. The returned envelope is
// always populated on a nil error; degraded upstreams lower confidence or
// swap in fallback text but never surface as errors.
func (qo *QueryOrchestrator) AnswerQuery(ctx context.Context, tenantID, query string) (models.AnswerEnvelope, error) {
	tracer := otel.Tracer("query-orchestrator")
	ctx, span := tracer.Start(ctx, "rag.answer_query")
	defer span.End()

	if tenantID == "" {
		return models.AnswerEnvelope{}, fmt.Errorf("%w: missing tenant", models.ErrTenantIsolation)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return models.AnswerEnvelope{}, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}

	truncated := false
	if len(query) > qo.maxQueryLength {
		cut := qo.maxQueryLength
		// Back up to a rune boundary so the cut never produces invalid UTF-8.
		for cut > 0 && !utf8.RuneStart(query[cut]) {
			cut--
		}
		query = query[:cut]
		truncated = true
	}

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int("query_length", len(query)),
		attribute.Bool("query_truncated", truncated),
	)

	if cached, ok := qo.cache.Get(ctx, tenantID, query); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		qo.metrics.RecordQuery(tenantID, outcomeLabel(*cached), true)
		cached.Truncated = truncated
		return *cached, nil
	}

	snap := qo.registry.Snapshot(tenantID)
	if snap.Empty() {
		envelope := models.AnswerEnvelope{
			ResponseText:  FallbackResponse,
			Citations:     []models.Citation{},
			Confidence:    0,
			RequiresHuman: true,
			Truncated:     truncated,
		}
		qo.metrics.RecordQuery(tenantID, "empty_index", false)
		qo.metrics.RecordEscalation(tenantID, "empty_index")
		return envelope, nil
	}

	queryVec, embedErr := qo.embedder.Embed(ctx, query)
	degraded := false
	if embedErr != nil {
		logger.Warn("Embedding unavailable, falling back to sparse-only retrieval",
			"tenant_id", tenantID, "error", embedErr)
		span.SetAttributes(attribute.Bool("sparse_only", true))
		degraded = true
	}

	fused := qo.retrieve(ctx, snap, query, queryVec, span, tenantID, &degraded)

	// Nothing found: one expansion pass broadens retrieval with LLM
	// reformulations before the answer settles on the fallback.
	if len(fused) == 0 {
		fused = qo.expandedRetrieve(ctx, snap, query, span, tenantID, &degraded)
	}

	confidence := qo.scorer.Score(fused)
	thresholds := qo.policies.Thresholds(ctx, tenantID)
	span.SetAttributes(attribute.Float64("confidence", confidence))
	qo.metrics.RecordConfidence(tenantID, confidence)

	responseText := ""
	if confidence >= thresholds.Low && len(fused) > 0 {
		responseText, degraded = qo.generate(ctx, tenantID, query, fused, degraded)
	}

	envelope := qo.assembler.Assemble(fused, confidence, thresholds, responseText)
	envelope.Truncated = truncated
	if responseText == GenerationFallbackResponse {
		envelope.RequiresHuman = true
	}

	if envelope.RequiresHuman {
		qo.metrics.RecordEscalation(tenantID, escalationReason(confidence, thresholds))
	}
	qo.metrics.RecordQuery(tenantID, outcomeLabel(envelope), false)

	// Degraded answers are transient; caching them would pin the degradation
	// past the outage.
	if !degraded {
		qo.cache.Set(ctx, tenantID, query, envelope)
	}

	return envelope, nil
}

// retrieve runs both retriever legs concurrently under the latency budget.
// A leg that errors or overruns contributes an empty list; the other leg's
// results still count.
func (qo *QueryOrchestrator) retrieve(
	ctx context.Context,
	snap *index.Snapshot,
	query string,
	queryVec []float32,
	span trace.Span,
	tenantID string,
	degraded *bool,
) []models.RetrievalResult {
	sparseCh := make(chan retrievalLeg, 1)
	denseCh := make(chan retrievalLeg, 1)

	start := time.Now()
	go func() {
		sparseCh <- retrievalLeg{name: "sparse", results: qo.sparse.Retrieve(snap, query, qo.topK)}
	}()
	go func() {
		if len(queryVec) == 0 {
			denseCh <- retrievalLeg{name: "dense"}
			return
		}
		results, err := qo.dense.Retrieve(snap, queryVec, qo.topK)
		denseCh <- retrievalLeg{name: "dense", results: results, err: err}
	}()

	var sparseResults, denseResults []models.RetrievalResult
	timer := time.NewTimer(qo.retrievalTimeout)
	defer timer.Stop()

	pending := 2
collect:
	for pending > 0 {
		select {
		case leg := <-sparseCh:
			pending--
			sparseResults = leg.results
			qo.metrics.RecordRetrieval("sparse", time.Since(start).Seconds(), false)
		case leg := <-denseCh:
			pending--
			if leg.err != nil {
				logger.Error("Dense retrieval failed, continuing sparse-only",
					"tenant_id", tenantID, "error", leg.err)
				*degraded = true
				qo.metrics.RecordRetrieval("dense", time.Since(start).Seconds(), true)
				break
			}
			denseResults = leg.results
			qo.metrics.RecordRetrieval("dense", time.Since(start).Seconds(), false)
		case <-timer.C:
			logger.Warn("Retrieval timed out, degrading to partial results",
				"tenant_id", tenantID, "pending_legs", pending,
				"timeout", qo.retrievalTimeout, "error", models.ErrRetrievalTimeout)
			*degraded = true
			break collect
		case <-ctx.Done():
			*degraded = true
			break collect
		}
	}

	span.SetAttributes(
		attribute.Int("sparse_results", len(sparseResults)),
		attribute.Int("dense_results", len(denseResults)),
	)

	fused := FuseResults(sparseResults, denseResults, qo.rrfK)
	if len(fused) > qo.topK {
		fused = fused[:qo.topK]
	}
	return fused
}

// maxQueryExpansions bounds how many reformulations one query may retry
// retrieval with.
const maxQueryExpansions = 4

// expandedRetrieve asks the generator for alternative phrasings of a query
// that matched nothing and retries retrieval with each, keeping the best
// fused ranking. Best effort: quota exhaustion or a generator failure leaves
// the original empty result standing.
func (qo *QueryOrchestrator) expandedRetrieve(
	ctx context.Context,
	snap *index.Snapshot,
	query string,
	span trace.Span,
	tenantID string,
	degraded *bool,
) []models.RetrievalResult {
	if qo.quotas != nil {
		if err := qo.quotas.Consume(ctx, tenantID, len(query)/2); err != nil {
			if errors.Is(err, ai.ErrQuotaExceeded) {
				return nil
			}
			logger.Error("Quota check failed, proceeding without reservation", "tenant_id", tenantID, "error", err)
		}
	}

	raw, err := qo.generator.Generate(ctx, buildExpansionPrompt(query), nil)
	if err != nil {
		logger.Warn("Query expansion unavailable", "tenant_id", tenantID, "error", err)
		return nil
	}

	var best []models.RetrievalResult
	bestScore := 0.0
	variants := parseExpansions(raw, query, maxQueryExpansions)
	for _, variant := range variants {
		vec, embedErr := qo.embedder.Embed(ctx, variant)
		if embedErr != nil {
			vec = nil
		}
		fused := qo.retrieve(ctx, snap, variant, vec, span, tenantID, degraded)
		if score := qo.scorer.Score(fused); score > bestScore {
			best, bestScore = fused, score
		}
	}

	if len(best) > 0 {
		span.SetAttributes(attribute.Bool("query_expanded", true))
		logger.Info("Query expansion recovered results",
			"tenant_id", tenantID, "variants", len(variants), "results", len(best))
	}
	return best
}

func buildExpansionPrompt(query string) string {
	return fmt.Sprintf("Rewrite the user's question into up to %d alternative phrasings that preserve the meaning, one per line.\n"+
		"Focus on synonyms, explicit topic names, and removing pronouns. Output the phrasings only.\n"+
		"USER QUESTION: %s", maxQueryExpansions, query)
}

// parseExpansions extracts distinct reformulations from the generator output,
// dropping bullets, numbering and echoes of the original query.
func parseExpansions(raw, original string, limit int) []string {
	seen := map[string]bool{strings.ToLower(original): true}
	var variants []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. \t"))
		if line == "" || seen[strings.ToLower(line)] {
			continue
		}
		seen[strings.ToLower(line)] = true
		variants = append(variants, line)
		if len(variants) == limit {
			break
		}
	}
	return variants
}

// generate produces the answer text, consuming tenant quota first. Quota
// exhaustion and generation failures fall back to a citation-only response.
func (qo *QueryOrchestrator) generate(ctx context.Context, tenantID, query string, fused []models.RetrievalResult, degraded bool) (string, bool) {
	contextChunks := make([]string, 0, len(fused))
	for _, res := range fused {
		contextChunks = append(contextChunks, res.Chunk.Text)
	}

	if qo.quotas != nil {
		estimated := len(query) / 4
		for _, c := range contextChunks {
			estimated += len(c) / 4
		}
		if err := qo.quotas.Consume(ctx, tenantID, estimated); err != nil {
			if errors.Is(err, ai.ErrQuotaExceeded) {
				logger.Warn("Tenant quota exhausted, returning citation-only answer", "tenant_id", tenantID)
				return GenerationFallbackResponse, true
			}
			logger.Error("Quota check failed, proceeding without reservation", "tenant_id", tenantID, "error", err)
		}
	}

	text, err := qo.generator.Generate(ctx, query, contextChunks)
	if err != nil {
		logger.Warn("Generation unavailable, returning citation-only answer",
			"tenant_id", tenantID, "error", err)
		return GenerationFallbackResponse, true
	}
	return text, degraded
}

func outcomeLabel(envelope models.AnswerEnvelope) string {
	if envelope.ResponseText == FallbackResponse {
		return "fallback"
	}
	if envelope.RequiresHuman {
		return "review"
	}
	return "autonomous"
}

func escalationReason(confidence float64, thresholds Thresholds) string {
	if confidence < thresholds.Low {
		return "below_low_threshold"
	}
	return "below_high_threshold"
}
