package merging

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestFieldMergerFillsGapsOnly(t *testing.T) {
	merger := NewFieldMerger()

	survivor := &models.Lead{
		Name:  strPtr("Maria"),
		Email: strPtr("survivor@example.com"),
	}
	duplicate := &models.Lead{
		Name:       strPtr("Maria Silva"),
		Email:      strPtr("duplicate@example.com"),
		Phone:      strPtr("5511987654321"),
		CampaignID: strPtr("camp-1"),
	}

	changed := merger.Merge(survivor, duplicate)

	assert.True(t, changed)
	// Survivor values win
	assert.Equal(t, "Maria", *survivor.Name)
	assert.Equal(t, "survivor@example.com", *survivor.Email)
	// Gaps fill from the duplicate
	assert.Equal(t, "5511987654321", *survivor.Phone)
	assert.Equal(t, "camp-1", *survivor.CampaignID)
}

func TestFieldMergerNoChange(t *testing.T) {
	merger := NewFieldMerger()

	survivor := &models.Lead{
		Name:  strPtr("Maria"),
		Email: strPtr("a@example.com"),
		Phone: strPtr("5511987654321"),
	}
	duplicate := &models.Lead{
		Name: strPtr("Other"),
	}

	assert.False(t, merger.Merge(survivor, duplicate))
	assert.Equal(t, "Maria", *survivor.Name)
}

func TestFieldMergerTagUnion(t *testing.T) {
	merger := NewFieldMerger()

	survivor := &models.Lead{
		Email: strPtr("a@example.com"),
		Tags:  pq.StringArray{"vip", "novo"},
	}
	duplicate := &models.Lead{
		Tags: pq.StringArray{"novo", "webinar"},
	}

	assert.True(t, merger.Merge(survivor, duplicate))
	assert.Equal(t, pq.StringArray{"novo", "vip", "webinar"}, survivor.Tags)

	// Identical tag sets do not report a change
	other := &models.Lead{Email: strPtr("a@example.com"), Tags: pq.StringArray{"vip"}}
	assert.False(t, merger.Merge(other, &models.Lead{Tags: pq.StringArray{"vip"}}))
}

func TestFieldMergerKeepsLatestInteraction(t *testing.T) {
	merger := NewFieldMerger()

	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	survivor := &models.Lead{
		Email:             strPtr("a@example.com"),
		LastEmailAt:       timePtr(earlier),
		LastInteractionAt: timePtr(later),
	}
	duplicate := &models.Lead{
		LastEmailAt:       timePtr(later),
		LastWhatsAppAt:    timePtr(earlier),
		LastInteractionAt: timePtr(earlier),
	}

	assert.True(t, merger.Merge(survivor, duplicate))
	assert.Equal(t, later, *survivor.LastEmailAt)
	assert.Equal(t, earlier, *survivor.LastWhatsAppAt)
	assert.Equal(t, later, *survivor.LastInteractionAt)
}

func TestChooseSurvivorMoreEventsWins(t *testing.T) {
	a := &models.Lead{ID: "lead-a"}
	b := &models.Lead{ID: "lead-b"}

	survivor, duplicate := ChooseSurvivor(a, b, 10, 3)
	assert.Equal(t, "lead-a", survivor.ID)
	assert.Equal(t, "lead-b", duplicate.ID)

	survivor, duplicate = ChooseSurvivor(a, b, 3, 10)
	assert.Equal(t, "lead-b", survivor.ID)
	assert.Equal(t, "lead-a", duplicate.ID)
}

func TestChooseSurvivorOlderBreaksTie(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	a := &models.Lead{ID: "lead-a", CreatedAt: newer}
	b := &models.Lead{ID: "lead-b", CreatedAt: older}

	survivor, _ := ChooseSurvivor(a, b, 5, 5)
	assert.Equal(t, "lead-b", survivor.ID)
}

func TestChooseSurvivorIDBreaksFinalTie(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a := &models.Lead{ID: "lead-b", CreatedAt: created}
	b := &models.Lead{ID: "lead-a", CreatedAt: created}

	survivor, duplicate := ChooseSurvivor(a, b, 5, 5)
	assert.Equal(t, "lead-a", survivor.ID)
	assert.Equal(t, "lead-b", duplicate.ID)

	// Stable regardless of argument order
	survivor2, _ := ChooseSurvivor(b, a, 5, 5)
	assert.Equal(t, survivor.ID, survivor2.ID)
}
