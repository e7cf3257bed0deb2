package matching

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/lead"
	"github.com/Ramsey-B/clover/internal/repositories/mergecandidate"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Engine generates and classifies merge candidates
type Engine struct {
	logger        ectologger.Logger
	leadRepo      *lead.Repository
	candidateRepo *mergecandidate.Repository
	config        Config
}

// NewEngine creates a new matching engine
func NewEngine(
	logger ectologger.Logger,
	leadRepo *lead.Repository,
	candidateRepo *mergecandidate.Repository,
	config Config,
) *Engine {
	return &Engine{
		logger:        logger,
		leadRepo:      leadRepo,
		candidateRepo: candidateRepo,
		config:        config,
	}
}

// Config returns the engine's similarity policy
func (e *Engine) Config() Config {
	return e.config
}

// Classify assigns a status tier to a similarity score. Below the
// review threshold the pair is discarded, not retained as rejected.
func (e *Engine) Classify(similarity float64) string {
	switch {
	case similarity >= e.config.AutoMergeThreshold:
		return models.MergeCandidateStatusPending
	case similarity >= e.config.ReviewThreshold:
		return models.MergeCandidateStatusReview
	default:
		return ""
	}
}

// RefreshResult summarizes one candidate scan
type RefreshResult struct {
	Scanned   int `json:"scanned"`
	Upserted  int `json:"upserted"`
	Discarded int `json:"discarded"`
}

// RefreshCandidates scans for leads whose identity keys overlap and
// produces or updates merge candidate rows. Safe to re-run: the scan is
// a pure function of current identities, and operator verdicts on
// existing pairs are never overwritten.
func (e *Engine) RefreshCandidates(ctx context.Context, limit int) (*RefreshResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.RefreshCandidates")
	defer span.End()

	log := e.logger.WithContext(ctx)

	pairs, err := e.leadRepo.ListIdentityOverlaps(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{Scanned: len(pairs)}
	candidates := make([]*models.MergeCandidate, 0, len(pairs))
	for _, pair := range pairs {
		similarity := Similarity(pair.PhoneMatched, pair.EmailMatched, e.config)
		status := e.Classify(similarity)
		if status == "" {
			continue
		}
		candidates = append(candidates, &models.MergeCandidate{
			LeadAID:      pair.LeadAID,
			LeadBID:      pair.LeadBID,
			Similarity:   similarity,
			PhoneMatched: pair.PhoneMatched,
			EmailMatched: pair.EmailMatched,
			Status:       status,
			IdentityHash: IdentityHash(pair.PhoneA, pair.EmailA, pair.PhoneB, pair.EmailB),
		})
	}

	if err := e.candidateRepo.UpsertBatch(ctx, candidates); err != nil {
		return nil, err
	}
	result.Upserted = len(candidates)

	// Drop open candidates that no longer clear the review bar, e.g.
	// after an identity correction or a threshold change
	discarded, err := e.candidateRepo.DiscardBelow(ctx, e.config.ReviewThreshold)
	if err != nil {
		return nil, err
	}
	result.Discarded = discarded

	log.WithFields(map[string]any{
		"scanned":   result.Scanned,
		"upserted":  result.Upserted,
		"discarded": result.Discarded,
	}).Info("Refreshed merge candidates")

	return result, nil
}
