package adapters

import "encoding/json"

// decodeArguments parses a tool-call argument payload. Backends emit
// arguments as a JSON object string; anything unparseable is preserved
// under a raw key so the dispatch layer still sees the payload.
func decodeArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return map[string]any{"raw": raw}
	}
	return input
}
