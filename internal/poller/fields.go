package poller

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultFields maps measurement names to their location in an Instagram
// web_profile_info response.
var DefaultFields = map[string]string{
	"followers": "data.user.edge_followed_by.count",
	"following": "data.user.edge_follow.count",
	"posts":     "data.user.edge_owner_to_timeline_media.count",
}

// fieldPath is a pre-split JSON dot path such as "data.user.edge_follow.count".
type fieldPath struct {
	name  string
	parts []string
}

// compileFields splits every dot path once so responses can be walked cheaply.
func compileFields(fields map[string]string) []fieldPath {
	compiled := make([]fieldPath, 0, len(fields))
	for name, path := range fields {
		compiled = append(compiled, fieldPath{name: name, parts: strings.Split(path, ".")})
	}
	return compiled
}

// extractFields decodes body and pulls a numeric value for every path.
// All paths must resolve; a partial snapshot is never returned.
func extractFields(body []byte, paths []fieldPath) (map[string]float64, error) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	values := make(map[string]float64, len(paths))
	for _, p := range paths {
		v, ok := extractJSONNumber(data, p.parts)
		if !ok {
			return nil, fmt.Errorf("field %q not found at %s", p.name, strings.Join(p.parts, "."))
		}
		values[p.name] = v
	}
	return values, nil
}

// extractJSONNumber walks a JSON structure using dot notation parts and
// returns the numeric value at the end of the path.
func extractJSONNumber(data interface{}, parts []string) (float64, bool) {
	current := data

	for _, part := range parts {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return 0, false
		}
		current, ok = obj[part]
		if !ok {
			return 0, false
		}
	}

	switch v := current.(type) {
	case float64:
		return v, true
	case string:
		// some APIs quote large counters
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
