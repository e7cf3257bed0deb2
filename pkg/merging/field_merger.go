package merging

import (
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/models"
)

// FieldMerger fills survivor gaps from the duplicate. Survivor values
// always win; the duplicate only contributes where the survivor has
// nothing. Tag sets union.
type FieldMerger struct{}

// NewFieldMerger creates a new field merger
func NewFieldMerger() *FieldMerger {
	return &FieldMerger{}
}

// Merge applies the conservative fill policy to the survivor in place
// and reports whether anything changed
func (m *FieldMerger) Merge(survivor, duplicate *models.Lead) bool {
	changed := false

	if survivor.Name == nil && duplicate.Name != nil {
		survivor.Name = duplicate.Name
		changed = true
	}
	if survivor.Email == nil && duplicate.Email != nil {
		survivor.Email = duplicate.Email
		changed = true
	}
	if survivor.Phone == nil && duplicate.Phone != nil {
		survivor.Phone = duplicate.Phone
		changed = true
	}
	if survivor.CampaignID == nil && duplicate.CampaignID != nil {
		survivor.CampaignID = duplicate.CampaignID
		changed = true
	}

	if tags, grew := unionTags(survivor.Tags, duplicate.Tags); grew {
		survivor.Tags = tags
		changed = true
	}

	if ts := laterTime(survivor.LastEmailAt, duplicate.LastEmailAt); ts != survivor.LastEmailAt {
		survivor.LastEmailAt = ts
		changed = true
	}
	if ts := laterTime(survivor.LastWhatsAppAt, duplicate.LastWhatsAppAt); ts != survivor.LastWhatsAppAt {
		survivor.LastWhatsAppAt = ts
		changed = true
	}
	if ts := laterTime(survivor.LastInteractionAt, duplicate.LastInteractionAt); ts != survivor.LastInteractionAt {
		survivor.LastInteractionAt = ts
		changed = true
	}

	return changed
}

func unionTags(a, b pq.StringArray) (pq.StringArray, bool) {
	if len(b) == 0 {
		return a, false
	}

	seen := make(map[string]bool, len(a))
	for _, tag := range a {
		seen[tag] = true
	}

	grew := false
	result := append(pq.StringArray{}, a...)
	for _, tag := range b {
		if !seen[tag] {
			seen[tag] = true
			result = append(result, tag)
			grew = true
		}
	}
	if !grew {
		return a, false
	}

	sort.Strings(result)
	return result, true
}

func laterTime(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || !b.After(*a) {
		return a
	}
	return b
}
