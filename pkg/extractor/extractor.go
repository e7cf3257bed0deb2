// Package extractor pulls subject identity fields out of raw provider
// payloads. Providers nest contact data inconsistently (Mailchimp under
// "data.merges", WhatsApp gateways under "contact"), so ingestion falls
// back to path probing when a webhook arrives without an explicit
// subject identity.
package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Extract retrieves a value from nested JSON data using a dot path.
// Array elements use bracket notation: "items[0].email". A missing
// segment returns nil, nil.
func Extract(data any, path string) (any, error) {
	if path == "" {
		return data, nil
	}

	current := data
	for _, part := range strings.Split(path, ".") {
		if current == nil {
			return nil, nil
		}

		key := part
		index := -1
		if open := strings.Index(part, "["); open != -1 && strings.HasSuffix(part, "]") {
			key = part[:open]
			idx, err := strconv.Atoi(part[open+1 : len(part)-1])
			if err != nil {
				return nil, fmt.Errorf("invalid array index in path segment %q", part)
			}
			index = idx
		}

		if key != "" {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, nil
			}
			current, ok = m[key]
			if !ok {
				return nil, nil
			}
		}

		if index >= 0 {
			arr, ok := current.([]any)
			if !ok || index >= len(arr) {
				return nil, nil
			}
			current = arr[index]
		}
	}

	return current, nil
}

// ExtractString extracts a scalar at the path as a string, nil when
// absent or not scalar
func ExtractString(data any, path string) *string {
	value, err := Extract(data, path)
	if err != nil || value == nil {
		return nil
	}

	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return &v
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(v)
		return &s
	default:
		return nil
	}
}

// Identity paths probed in order. The first non-empty hit wins.
var emailPaths = []string{
	"email", "contact.email", "subscriber.email", "data.email", "lead.email",
}

var phonePaths = []string{
	"phone", "whatsapp", "contact.phone", "contact.whatsapp", "subscriber.phone",
	"data.phone", "lead.phone",
}

var namePaths = []string{
	"name", "contact.name", "subscriber.name", "data.name", "lead.name",
}

// IdentityFromMetadata probes a raw metadata document for contact
// fields. Returns found email, phone, and name, any of which may be
// nil.
func IdentityFromMetadata(metadata json.RawMessage) (email, phone, name *string) {
	if len(metadata) == 0 {
		return nil, nil, nil
	}

	var data map[string]any
	if err := json.Unmarshal(metadata, &data); err != nil {
		return nil, nil, nil
	}

	for _, path := range emailPaths {
		if v := ExtractString(data, path); v != nil {
			email = v
			break
		}
	}
	for _, path := range phonePaths {
		if v := ExtractString(data, path); v != nil {
			phone = v
			break
		}
	}
	for _, path := range namePaths {
		if v := ExtractString(data, path); v != nil {
			name = v
			break
		}
	}

	return email, phone, name
}
