package domain

import (
	"dario.cat/mergo"

	"github.com/weftworks/weft/internal/xjson"
)

// MergeStates folds a node's output into the accumulated run context.
// Later values win, slices append. Neither input is mutated; the result
// is freshly allocated.
func MergeStates(current, update map[string]interface{}) (map[string]interface{}, error) {
	if len(current) == 0 {
		return deepCopyMap(update)
	}
	if len(update) == 0 {
		return deepCopyMap(current)
	}

	merged, err := deepCopyMap(current)
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(&merged, update,
		mergo.WithOverride,
		mergo.WithAppendSlice); err != nil {
		return nil, NewInternalError("merge states", err)
	}
	return merged, nil
}

func deepCopyMap(m map[string]interface{}) (map[string]interface{}, error) {
	if len(m) == 0 {
		return map[string]interface{}{}, nil
	}
	raw, err := xjson.Marshal(m)
	if err != nil {
		return nil, NewInternalError("copy state", err)
	}
	out := make(map[string]interface{}, len(m))
	if err := xjson.Unmarshal(raw, &out); err != nil {
		return nil, NewInternalError("copy state", err)
	}
	return out, nil
}
