package extractor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	return data
}

func TestExtract(t *testing.T) {
	data := decode(t, `{
		"contact": {"email": "a@example.com"},
		"items": [{"sku": "CURSO-01"}, {"sku": "CURSO-02"}],
		"value": 497
	}`)

	v, err := Extract(data, "contact.email")
	assert.NoError(t, err)
	assert.Equal(t, "a@example.com", v)

	v, err = Extract(data, "items[1].sku")
	assert.NoError(t, err)
	assert.Equal(t, "CURSO-02", v)

	// Missing segments are nil, not errors
	v, err = Extract(data, "contact.phone")
	assert.NoError(t, err)
	assert.Nil(t, v)

	v, err = Extract(data, "items[5].sku")
	assert.NoError(t, err)
	assert.Nil(t, v)

	// Traversing through a scalar is nil too
	v, err = Extract(data, "value.deep")
	assert.NoError(t, err)
	assert.Nil(t, v)

	// Malformed index is the one hard error
	_, err = Extract(data, "items[x].sku")
	assert.Error(t, err)

	// Empty path returns the document itself
	v, err = Extract(data, "")
	assert.NoError(t, err)
	assert.Equal(t, data, v)
}

func TestExtractString(t *testing.T) {
	data := decode(t, `{"name": "Maria", "value": 497.5, "active": true, "empty": "", "nested": {}}`)

	assert.Equal(t, "Maria", *ExtractString(data, "name"))
	assert.Equal(t, "497.5", *ExtractString(data, "value"))
	assert.Equal(t, "true", *ExtractString(data, "active"))
	assert.Nil(t, ExtractString(data, "empty"))
	assert.Nil(t, ExtractString(data, "nested"))
	assert.Nil(t, ExtractString(data, "missing"))
}

func TestIdentityFromMetadata(t *testing.T) {
	email, phone, name := IdentityFromMetadata(json.RawMessage(`{
		"contact": {"email": "a@example.com", "whatsapp": "+55 11 98765-4321"},
		"lead": {"name": "Maria Silva"}
	}`))

	require.NotNil(t, email)
	assert.Equal(t, "a@example.com", *email)
	require.NotNil(t, phone)
	assert.Equal(t, "+55 11 98765-4321", *phone)
	require.NotNil(t, name)
	assert.Equal(t, "Maria Silva", *name)
}

func TestIdentityFromMetadataFirstHitWins(t *testing.T) {
	email, _, _ := IdentityFromMetadata(json.RawMessage(`{
		"email": "top@example.com",
		"contact": {"email": "nested@example.com"}
	}`))

	require.NotNil(t, email)
	assert.Equal(t, "top@example.com", *email)
}

func TestIdentityFromMetadataAbsent(t *testing.T) {
	email, phone, name := IdentityFromMetadata(nil)
	assert.Nil(t, email)
	assert.Nil(t, phone)
	assert.Nil(t, name)

	email, phone, name = IdentityFromMetadata(json.RawMessage(`{"delivery_attempt": 2}`))
	assert.Nil(t, email)
	assert.Nil(t, phone)
	assert.Nil(t, name)

	// Garbage metadata yields nothing rather than an error
	email, _, _ = IdentityFromMetadata(json.RawMessage(`{broken`))
	assert.Nil(t, email)
}
