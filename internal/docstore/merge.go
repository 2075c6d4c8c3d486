package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// encode turns a write payload into a JSON object.
func encode(data any) ([]byte, error) {
	b, ok := data.(json.RawMessage)
	if !ok {
		var err error
		if b, err = json.Marshal(data); err != nil {
			return nil, fmt.Errorf("failed to encode document: %w", err)
		}
	}
	if !json.Valid(b) || !bytes.HasPrefix(bytes.TrimSpace(b), []byte("{")) {
		return nil, fmt.Errorf("document payload must be a JSON object, got %s", b)
	}
	return b, nil
}

func decodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// mergeJSON deep-merges patch into base. Nested objects are merged key by key;
// every other value in patch replaces the one in base.
func mergeJSON(base, patch []byte) ([]byte, error) {
	dst, err := decodeObject(base)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored document: %w", err)
	}
	src, err := decodeObject(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to decode merge payload: %w", err)
	}
	mergeMaps(dst, src)
	return json.Marshal(dst)
}

func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		srcChild, srcIsMap := v.(map[string]any)
		dstChild, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeMaps(dstChild, srcChild)
			continue
		}
		dst[k] = v
	}
}
