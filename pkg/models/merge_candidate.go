package models

import "time"

// MergeCandidate statuses. "pending" candidates crossed the auto
// threshold; "review" needs a human; accepted/rejected are operator
// verdicts and survive reclassification.
const (
	MergeCandidateStatusPending  = "pending"
	MergeCandidateStatusReview   = "review"
	MergeCandidateStatusAccepted = "accepted"
	MergeCandidateStatusRejected = "rejected"
	MergeCandidateStatusMerged   = "merged"
)

// MergeCandidate is a detected pair of leads suspected to be the same
// person. The pair is stored ordered (lead_a_id < lead_b_id) so the
// same two leads can never produce two rows.
type MergeCandidate struct {
	ID           string     `json:"id" db:"id"`
	LeadAID      string     `json:"lead_a_id" db:"lead_a_id"`
	LeadBID      string     `json:"lead_b_id" db:"lead_b_id"`
	Similarity   float64    `json:"similarity" db:"similarity"`
	PhoneMatched bool       `json:"phone_matched" db:"phone_matched"`
	EmailMatched bool       `json:"email_matched" db:"email_matched"`
	Status       string     `json:"status" db:"status"`
	IdentityHash string     `json:"-" db:"identity_hash"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy   *string    `json:"resolved_by,omitempty" db:"resolved_by"`
}

// OrderPair returns the two lead ids in canonical (ascending) order
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// MergeCandidateListResponse is the response for listing merge candidates
type MergeCandidateListResponse struct {
	Items      []MergeCandidate `json:"items"`
	TotalCount int              `json:"total_count"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
}

// MergeResult summarizes one executed merge
type MergeResult struct {
	SurvivorID        string `json:"survivor_id"`
	DuplicateID       string `json:"duplicate_id"`
	EventsReparented  int    `json:"events_reparented"`
	LedgerReparented  int    `json:"ledger_reparented"`
	SurvivorScore     int    `json:"survivor_score"`
	SurvivorTemp      string `json:"survivor_temperature"`
}

// MergeAuditEntry records one executed merge for after-the-fact review
type MergeAuditEntry struct {
	ID               string    `json:"id" db:"id"`
	SurvivorID       string    `json:"survivor_id" db:"survivor_id"`
	DuplicateID      string    `json:"duplicate_id" db:"duplicate_id"`
	CandidateID      *string   `json:"candidate_id,omitempty" db:"candidate_id"`
	Similarity       *float64  `json:"similarity,omitempty" db:"similarity"`
	EventsReparented int       `json:"events_reparented" db:"events_reparented"`
	MergedBy         *string   `json:"merged_by,omitempty" db:"merged_by"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
