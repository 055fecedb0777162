package classification

import (
	"context"
	"log"
	"time"

	"github.com/echoledger/platform/internal/shared/config"
	"github.com/echoledger/platform/internal/shared/events"
	"github.com/echoledger/platform/internal/shared/metrics"
	"github.com/echoledger/platform/internal/shared/types"
)

// Service runs the full classification pipeline: normalize, extract,
// classify locally, escalate when the local confidence is too low, merge
// and record stats. One request is processed synchronously end to end;
// the call into the external classifier is the only suspension point.
type Service struct {
	cfg      config.ClassifierConfig
	local    *LocalClassifier
	external ExternalClassifier
	stats    *StatsTracker
	bus      events.EventBus
}

// NewService wires the pipeline. external may be nil when escalation is
// disabled; bus may be a NoopBus.
func NewService(cfg config.ClassifierConfig, lexicon *Lexicon, external ExternalClassifier, bus events.EventBus) *Service {
	extractor := NewExtractor(lexicon)
	return &Service{
		cfg:      cfg,
		local:    NewLocalClassifier(extractor, cfg.ReviewThreshold, cfg.ReviewLengthChars),
		external: external,
		stats:    NewStatsTracker(),
		bus:      bus,
	}
}

// Process classifies one directive text for a patient. Always returns a
// complete analysis on success; the only error path is input rejection.
func (s *Service) Process(ctx context.Context, patient types.PatientRef, text string) (DirectiveAnalysis, error) {
	start := time.Now()

	normalized, err := Normalize(text, s.cfg.MaxInputChars)
	if err != nil {
		return DirectiveAnalysis{}, err
	}

	rawLen := RawLength(text)
	localResult := s.local.Classify(normalized, rawLen)

	result := s.route(ctx, text, localResult)

	latency := time.Since(start)
	result.CostEstimateUSD = CostEstimate(result.ProcessingTier, rawLen)
	result.ProcessingTimeMs = latency.Milliseconds()

	s.stats.Record(result, result.ProcessingTier, latency, result.CostEstimateUSD)
	metrics.RecordClassification(string(result.ProcessingTier), result.ConfidenceScore, latency, result.RequiresHumanReview)
	metrics.RecordCostSavings(s.stats.Snapshot().AvgCostSavingsPct)

	s.publishClassified(ctx, patient, result)

	return result, nil
}

// route decides whether the local result stands or the external
// classifier is consulted. A single escalation attempt is made per
// request, bounded by the configured timeout; there is no retry.
func (s *Service) route(ctx context.Context, text string, local DirectiveAnalysis) DirectiveAnalysis {
	if local.ConfidenceScore >= s.cfg.EscalationThreshold {
		return local
	}
	if !s.cfg.ExternalEnabled || s.external == nil {
		return local
	}

	// A total non-match (confidence 0.0) still escalates. That matches
	// the source system's behavior and is kept deliberately: the
	// external classifier may find directives the lexicon misses.
	extCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalTimeout)
	defer cancel()

	externalResult, err := s.external.Classify(extCtx, text)
	if err != nil {
		// Fall back to the local result but keep the tier HYBRID so the
		// attempted escalation is visible to callers.
		metrics.RecordEscalationFailure()
		local.ProcessingTier = TierHybrid
		local.EscalationFailed = true
		return local
	}

	return Merge(local, externalResult, s.cfg.ReviewThreshold)
}

// Stats returns a read-only snapshot of the running aggregates
func (s *Service) Stats() ProcessingStats {
	return s.stats.Snapshot()
}

func (s *Service) publishClassified(ctx context.Context, patient types.PatientRef, result DirectiveAnalysis) {
	if s.bus == nil {
		return
	}

	directiveTypes := make([]DirectiveType, 0, len(result.ExtractedDirectives))
	for _, d := range result.ExtractedDirectives {
		directiveTypes = append(directiveTypes, d.DirectiveType)
	}

	event := events.NewEvent(events.TypeDirectiveClassified, "classification", map[string]any{
		"directive_types":       directiveTypes,
		"confidence_score":      result.ConfidenceScore,
		"processing_tier":       result.ProcessingTier,
		"requires_human_review": result.RequiresHumanReview,
	}).WithActor("patient", patient.Hash(), "")

	if err := s.bus.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish classification event: %v", err)
	}
}
