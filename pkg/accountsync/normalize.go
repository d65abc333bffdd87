package accountsync

import (
	"encoding/json"
	"fmt"
	"strings"
)

// fieldAliases maps each canonical event field to the ordered list of
// dotted-path probes tried against the raw payload. Vendors rename and
// re-nest fields between plan tiers and API versions; adding a new alias
// here is a data change, not new code.
var fieldAliases = map[string][]string{
	"event_id":   {"event_id", "eventId", "id", "event.id"},
	"event_type": {"event_type", "eventType", "type", "event.type", "event"},
	"email": {
		"contact.email", "email", "customer.email", "data.email",
		"data.contact.email", "payload.email", "subscriber.email",
	},
	"contact_id": {
		"contact.id", "contact_id", "contactId", "customer.id",
		"data.contact.id", "subscriber.id",
	},
	"name": {
		"contact.name", "name", "customer.name", "full_name",
		"contact.full_name", "data.contact.name",
	},
	"product_id": {
		"product_id", "productId", "product.id", "data.product_id",
		"purchase.product_id", "order.product_id",
	},
}

// tagAliases are probed for the tag collection, which may be an array of
// strings or a single comma-separated string.
var tagAliases = []string{"tags", "contact.tags", "customer.tags", "labels"}

// Normalize extracts a canonical WebhookEvent from an arbitrarily-shaped
// JSON payload. For every logical field the first non-empty alias wins.
// A missing email is not an error; callers treat it as a terminal
// "ignored" outcome.
func Normalize(raw []byte) (*WebhookEvent, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	return NormalizeMap(payload), nil
}

// NormalizeMap extracts a canonical WebhookEvent from an already-decoded
// payload.
func NormalizeMap(payload map[string]interface{}) *WebhookEvent {
	return &WebhookEvent{
		EventID:   firstString(payload, fieldAliases["event_id"]),
		EventType: strings.ToLower(firstString(payload, fieldAliases["event_type"])),
		Contact: Contact{
			Email: strings.ToLower(firstString(payload, fieldAliases["email"])),
			ID:    firstString(payload, fieldAliases["contact_id"]),
			Name:  firstString(payload, fieldAliases["name"]),
		},
		ProductID: firstString(payload, fieldAliases["product_id"]),
		Tags:      extractTags(payload),
	}
}

// firstString probes the alias paths in order and returns the first
// non-empty string value found.
func firstString(payload map[string]interface{}, paths []string) string {
	for _, path := range paths {
		if s, ok := lookupPath(payload, path).(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// lookupPath walks a dotted path through nested JSON objects.
// Returns nil when any segment is missing or not an object.
func lookupPath(payload map[string]interface{}, path string) interface{} {
	segments := strings.Split(path, ".")
	var current interface{} = payload
	for _, seg := range segments {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = obj[seg]
		if !ok {
			return nil
		}
	}
	return current
}

// extractTags folds the first tag-shaped value found into a lower-cased set.
func extractTags(payload map[string]interface{}) map[string]struct{} {
	tags := make(map[string]struct{})
	for _, path := range tagAliases {
		switch v := lookupPath(payload, path).(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					addTag(tags, s)
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				addTag(tags, s)
			}
		default:
			continue
		}
		if len(tags) > 0 {
			return tags
		}
	}
	return tags
}

func addTag(tags map[string]struct{}, s string) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s != "" {
		tags[s] = struct{}{}
	}
}
