package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// HubTag identifies a HubSpot product module attached to a project.
type HubTag string

// Known hub tags.
const (
	HubMarketing  HubTag = "marketing_hub"
	HubSales      HubTag = "sales_hub"
	HubService    HubTag = "service_hub"
	HubOperations HubTag = "operations_hub"
	HubCRM        HubTag = "hubspot_crm"
	HubCommerce   HubTag = "commerce_hub"
	HubContent    HubTag = "content_hub"
)

// Valid reports whether h is one of the known hub tags.
func (h HubTag) Valid() bool {
	switch h {
	case HubMarketing, HubSales, HubService, HubOperations, HubCRM, HubCommerce, HubContent:
		return true
	}
	return false
}

// ParseHubs normalizes the wire forms a hubspot_hubs column can arrive in:
// a native list, Postgres array text ("{a,b}") or a JSON array string.
// Non-string elements are dropped. Input that cannot be parsed is logged and
// yields an empty list, never an error.
func ParseHubs(raw any, logger *zap.Logger) []HubTag {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch v := raw.(type) {
	case nil:
		return []HubTag{}
	case []HubTag:
		return append([]HubTag{}, v...)
	case []string:
		out := make([]HubTag, 0, len(v))
		for _, s := range v {
			out = append(out, HubTag(s))
		}
		return out
	case []any:
		return hubsFromValues(v)
	case []byte:
		return parseHubText(string(v), logger)
	case string:
		return parseHubText(v, logger)
	default:
		logger.Warn("unexpected hubspot_hubs representation", zap.String("type", fmt.Sprintf("%T", raw)))
		return []HubTag{}
	}
}

func parseHubText(s string, logger *zap.Logger) []HubTag {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return parseBraceArray(trimmed)
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		logger.Warn("failed to parse hubspot_hubs", zap.String("value", s), zap.Error(err))
		return []HubTag{}
	}
	list, ok := decoded.([]any)
	if !ok {
		logger.Warn("hubspot_hubs JSON is not an array", zap.String("value", s))
		return []HubTag{}
	}
	return hubsFromValues(list)
}

func parseBraceArray(s string) []HubTag {
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return []HubTag{}
	}
	parts := strings.Split(inner, ",")
	out := make([]HubTag, 0, len(parts))
	for _, part := range parts {
		tag := strings.Trim(strings.TrimSpace(part), `"`)
		if tag == "" || strings.EqualFold(tag, "NULL") {
			continue
		}
		out = append(out, HubTag(tag))
	}
	return out
}

func hubsFromValues(values []any) []HubTag {
	out := make([]HubTag, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, HubTag(s))
		}
	}
	return out
}

// HubStrings converts tags to plain strings for driver parameters.
func HubStrings(hubs []HubTag) []string {
	out := make([]string, 0, len(hubs))
	for _, h := range hubs {
		out = append(out, string(h))
	}
	return out
}
