// Package fingerprint derives deterministic idempotency keys from the
// stable fields of inbound events.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ForWebhookEvent computes the ledger idempotency key for an event.
// Only stable fields participate: source, type, and the provider's
// external id when present; otherwise the subject identity plus the
// provider-side fire time stand in for it. Delivery metadata is
// excluded so redeliveries hash identically.
func ForWebhookEvent(event models.WebhookEvent) string {
	fields := map[string]any{
		"source": event.Source,
		"type":   event.Type,
	}

	if event.ExternalID != nil && *event.ExternalID != "" {
		fields["external_id"] = *event.ExternalID
	} else {
		fields["email"] = event.SubjectIdentity.Email
		fields["phone"] = event.SubjectIdentity.Phone
		fields["fired_at"] = event.FiredAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}

	return Generate(fields)
}

// Generate creates a deterministic fingerprint for arbitrary data.
// The fingerprint is a SHA256 hash of the canonicalized JSON.
func Generate(data map[string]any) string {
	canonical := canonicalize(data)
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// canonicalize creates a deterministic string representation of a value
// by sorting map keys and recursively processing nested structures
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		return canonicalizeMap(v)
	case []any:
		return canonicalizeArray(v)
	default:
		// For primitives, use JSON encoding
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func canonicalizeMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := "{"
	for i, k := range keys {
		if i > 0 {
			result += ","
		}
		keyJSON, _ := json.Marshal(k)
		result += string(keyJSON) + ":" + canonicalize(m[k])
	}
	result += "}"
	return result
}

func canonicalizeArray(arr []any) string {
	result := "["
	for i, v := range arr {
		if i > 0 {
			result += ","
		}
		result += canonicalize(v)
	}
	result += "]"
	return result
}
