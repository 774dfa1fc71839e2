package config

import (
	"bytes"
	"encoding/json"
)

// deepMerge merges overlay into base without mutating either. Nested
// objects merge recursively; any other value in overlay replaces the base
// value, arrays included.
func deepMerge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		if bv, ok := out[k].(map[string]any); ok {
			if ov, ok := v.(map[string]any); ok {
				out[k] = deepMerge(bv, ov)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// serverOrder returns mcpServers keys in declaration order: global file
// order first, then local-only servers in local file order. encoding/json
// maps lose key order, so the order is recovered from the raw bytes.
func serverOrder(globalData, localData []byte) []string {
	order := serverKeys(globalData)
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		seen[name] = true
	}
	for _, name := range serverKeys(localData) {
		if !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	return order
}

// serverKeys extracts the mcpServers object keys from a configuration file
// in the order they appear.
func serverKeys(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil
	}
	raw, ok := top["mcpServers"]
	if !ok {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil
		}
	}
	return keys
}
