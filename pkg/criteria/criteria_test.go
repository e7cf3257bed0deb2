package criteria

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func matches(t *testing.T, metadata, criteria string) bool {
	t.Helper()
	return MatchesMetadata(json.RawMessage(metadata), json.RawMessage(criteria))
}

func TestMatchesMetadataEmptyCriteria(t *testing.T) {
	metadata := `{"utm_source":"facebook"}`

	assert.True(t, MatchesMetadata(json.RawMessage(metadata), nil))
	assert.True(t, matches(t, metadata, "null"))
	assert.True(t, matches(t, metadata, "{}"))
}

func TestMatchesMetadataEquality(t *testing.T) {
	metadata := `{"utm_source":"facebook","attempt":3}`

	assert.True(t, matches(t, metadata, `{"utm_source":"facebook"}`))
	assert.False(t, matches(t, metadata, `{"utm_source":"google"}`))
	assert.False(t, matches(t, metadata, `{"missing":"x"}`))

	// Numeric coercion: criteria ints match JSON float64 values
	assert.True(t, matches(t, metadata, `{"attempt":3}`))
}

func TestMatchesMetadataNestedDotNotation(t *testing.T) {
	metadata := `{"purchase":{"product":{"sku":"CURSO-01"},"value":497.0}}`

	assert.True(t, matches(t, metadata, `{"purchase.product.sku":"CURSO-01"}`))
	assert.False(t, matches(t, metadata, `{"purchase.product.sku":"CURSO-02"}`))
	assert.False(t, matches(t, metadata, `{"purchase.product.missing":"x"}`))
}

func TestMatchesMetadataOperators(t *testing.T) {
	metadata := `{"value":497,"plan":"pro","tags":["vip","novo"],"refunded":false}`

	tests := []struct {
		name     string
		criteria string
		expected bool
	}{
		{"ne mismatch passes", `{"plan":{"$ne":"free"}}`, true},
		{"ne match fails", `{"plan":{"$ne":"pro"}}`, false},
		{"ne on missing field passes", `{"coupon":{"$ne":"BLACKFRIDAY"}}`, true},
		{"exists true", `{"plan":{"$exists":true}}`, true},
		{"exists false on present field", `{"plan":{"$exists":false}}`, false},
		{"exists false on missing field", `{"coupon":{"$exists":false}}`, true},
		{"in hit", `{"plan":{"$in":["pro","enterprise"]}}`, true},
		{"in miss", `{"plan":{"$in":["free","basic"]}}`, false},
		{"contains hit", `{"tags":{"$contains":"vip"}}`, true},
		{"contains miss", `{"tags":{"$contains":"churned"}}`, false},
		{"contains on scalar fails", `{"plan":{"$contains":"p"}}`, false},
		{"gte boundary", `{"value":{"$gte":497}}`, true},
		{"gt boundary", `{"value":{"$gt":497}}`, false},
		{"lte", `{"value":{"$lte":500}}`, true},
		{"lt", `{"value":{"$lt":100}}`, false},
		{"numeric compare on non-number fails", `{"plan":{"$gte":1}}`, false},
		{"unknown operator fails", `{"plan":{"$regex":"p.*"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matches(t, metadata, tt.criteria))
		})
	}
}

func TestMatchesMetadataAndLogic(t *testing.T) {
	metadata := `{"utm_source":"facebook","value":497}`

	assert.True(t, matches(t, metadata, `{"utm_source":"facebook","value":{"$gte":100}}`))
	assert.False(t, matches(t, metadata, `{"utm_source":"facebook","value":{"$gte":1000}}`))
}

func TestMatchesMetadataBadDocuments(t *testing.T) {
	// Unparseable criteria never match
	assert.False(t, matches(t, `{"a":1}`, `{not json`))

	// Unparseable metadata never matches non-empty criteria
	assert.False(t, matches(t, `{not json`, `{"a":1}`))

	// Empty metadata still satisfies absence conditions
	assert.True(t, MatchesMetadata(nil, json.RawMessage(`{"coupon":{"$exists":false}}`)))
	assert.False(t, MatchesMetadata(nil, json.RawMessage(`{"coupon":"BF"}`)))
}

func TestParse(t *testing.T) {
	conditions := Parse(map[string]any{
		"plan":  "pro",
		"value": map[string]any{"$gte": 100},
	})

	assert.Len(t, conditions, 2)

	byField := map[string]Condition{}
	for _, c := range conditions {
		byField[c.Field] = c
	}
	assert.Equal(t, OpEquals, byField["plan"].Operator)
	assert.Equal(t, "pro", byField["plan"].Value)
	assert.Equal(t, OpGte, byField["value"].Operator)
}
