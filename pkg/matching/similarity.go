// Package matching detects duplicate leads through identity overlap and
// tiers each detected pair's confidence.
package matching

import "github.com/Ramsey-B/clover/pkg/fingerprint"

// Config holds the similarity weights and classification thresholds.
// Weights are policy, not a fixed formula, but the combination must be
// monotonic: more matching identity fields never lowers the score.
type Config struct {
	PhoneWeight        float64
	EmailWeight        float64
	AutoMergeThreshold float64
	ReviewThreshold    float64
}

// DefaultConfig mirrors the production defaults: a phone match alone
// reaches the auto threshold, an email match alone only reaches review,
// both matching saturates the scale.
func DefaultConfig() Config {
	return Config{
		PhoneWeight:        0.98,
		EmailWeight:        0.85,
		AutoMergeThreshold: 0.98,
		ReviewThreshold:    0.85,
	}
}

// Similarity combines identity match signals into a [0,1] score. A
// phone match contributes the dominant weight, an email match the
// smaller one; both matching yields the maximum.
func Similarity(phoneMatched, emailMatched bool, cfg Config) float64 {
	switch {
	case phoneMatched && emailMatched:
		return 1.0
	case phoneMatched:
		return cfg.PhoneWeight
	case emailMatched:
		return cfg.EmailWeight
	default:
		return 0
	}
}

// IdentityHash fingerprints the identity fields a pair was judged on.
// A rejected candidate stays rejected only while this hash is stable;
// when either lead's canonical phone or email changes, the pair is a
// new question and the rejection no longer applies.
func IdentityHash(phoneA, emailA, phoneB, emailB string) string {
	return fingerprint.Generate(map[string]any{
		"phone_a": phoneA,
		"email_a": emailA,
		"phone_b": phoneB,
		"email_b": emailB,
	})
}
