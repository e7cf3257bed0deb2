package processor

import (
	"context"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func retiredLead(id, into string) *models.Lead {
	lead := &models.Lead{ID: id, Status: models.LeadStatusMerged}
	if into != "" {
		lead.MergedInto = &into
	}
	return lead
}

func mapGetter(leads ...*models.Lead) func(context.Context, string) (*models.Lead, error) {
	byID := map[string]*models.Lead{}
	for _, l := range leads {
		byID[l.ID] = l
	}
	return func(_ context.Context, id string) (*models.Lead, error) {
		lead, ok := byID[id]
		if !ok {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "lead not found")
		}
		return lead, nil
	}
}

func TestFollowMergedInto(t *testing.T) {
	survivor := &models.Lead{ID: "lead-c", Status: models.LeadStatusActive}
	get := mapGetter(retiredLead("lead-b", "lead-c"), survivor)

	// A retired lead whose survivor was itself retired resolves through
	// the whole chain
	resolved, err := followMergedInto(context.Background(), get, retiredLead("lead-a", "lead-b"))
	require.NoError(t, err)
	assert.Equal(t, "lead-c", resolved.ID)

	// A live lead resolves to itself without any lookups
	resolved, err = followMergedInto(context.Background(), mapGetter(), survivor)
	require.NoError(t, err)
	assert.Equal(t, "lead-c", resolved.ID)
}

func TestFollowMergedIntoCycle(t *testing.T) {
	get := mapGetter(
		retiredLead("lead-a", "lead-b"),
		retiredLead("lead-b", "lead-a"),
	)

	_, err := followMergedInto(context.Background(), get, retiredLead("lead-a", "lead-b"))
	assert.Error(t, err)
}

func TestStatusTransitionFor(t *testing.T) {
	assert.Equal(t, models.LeadStatusEmailInvalido, statusTransitionFor(models.EventTypeEmailBounced))
	assert.Equal(t, models.LeadStatusDescadastrado, statusTransitionFor(models.EventTypeEmailUnsubscribed))

	// Everything else leaves the status alone
	assert.Equal(t, "", statusTransitionFor(models.EventTypeEmailOpened))
	assert.Equal(t, "", statusTransitionFor(models.EventTypePurchaseCompleted))
	assert.Equal(t, "", statusTransitionFor("unknown_event"))
}
