package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestSimilarity(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1.0, Similarity(true, true, cfg))
	assert.Equal(t, 0.98, Similarity(true, false, cfg))
	assert.Equal(t, 0.85, Similarity(false, true, cfg))
	assert.Equal(t, 0.0, Similarity(false, false, cfg))
}

func TestSimilarityMonotonic(t *testing.T) {
	cfg := DefaultConfig()

	both := Similarity(true, true, cfg)
	assert.GreaterOrEqual(t, both, Similarity(true, false, cfg))
	assert.GreaterOrEqual(t, both, Similarity(false, true, cfg))
	assert.Greater(t, Similarity(true, false, cfg), Similarity(false, false, cfg))
	assert.Greater(t, Similarity(false, true, cfg), Similarity(false, false, cfg))
}

func TestClassify(t *testing.T) {
	engine := NewEngine(nil, nil, nil, DefaultConfig())

	assert.Equal(t, models.MergeCandidateStatusPending, engine.Classify(1.0))
	assert.Equal(t, models.MergeCandidateStatusPending, engine.Classify(0.98))
	assert.Equal(t, models.MergeCandidateStatusReview, engine.Classify(0.90))
	assert.Equal(t, models.MergeCandidateStatusReview, engine.Classify(0.85))
	assert.Equal(t, "", engine.Classify(0.50))
	assert.Equal(t, "", engine.Classify(0.0))
}

func TestIdentityHash(t *testing.T) {
	base := IdentityHash("5511987654321", "a@example.com", "5511987654321", "")

	// Stable for the same identity snapshot
	assert.Equal(t, base, IdentityHash("5511987654321", "a@example.com", "5511987654321", ""))

	// Any identity change reopens the question
	assert.NotEqual(t, base, IdentityHash("5511987654321", "a@example.com", "5511987654321", "b@example.com"))
	assert.NotEqual(t, base, IdentityHash("5511900000000", "a@example.com", "5511987654321", ""))

	// The two sides do not collapse into each other
	assert.NotEqual(t,
		IdentityHash("5511987654321", "", "", "a@example.com"),
		IdentityHash("", "a@example.com", "5511987654321", ""))
}

func TestClassifyCustomThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoMergeThreshold = 0.90
	cfg.ReviewThreshold = 0.60
	engine := NewEngine(nil, nil, nil, cfg)

	assert.Equal(t, models.MergeCandidateStatusPending, engine.Classify(0.95))
	assert.Equal(t, models.MergeCandidateStatusReview, engine.Classify(0.85))
	assert.Equal(t, "", engine.Classify(0.50))
}
