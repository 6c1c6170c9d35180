package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Patch is a partial update to a CaseRecord, shaped like a sparse JSON
// rendering of the record itself. Objects merge recursively; scalars and
// arrays replace.
type Patch map[string]any

// Merge applies patches to r in call order and returns the merged record.
// The receiver is not modified. Merged records keep a monotonically
// non-decreasing LastUpdated; CaseID, SchemaVersion and IsSubmitted come
// from the receiver, never from a patch.
func (r *CaseRecord) Merge(patches ...Patch) (*CaseRecord, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var base map[string]any
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	for _, patch := range patches {
		deepMerge(base, map[string]any(patch))
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("marshal merged record: %w", err)
	}
	var out CaseRecord
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, fmt.Errorf("patch does not fit record shape: %w", err)
	}

	// Identity and lifecycle are server-owned; a patch cannot move them.
	out.CaseID = r.CaseID
	out.SchemaVersion = r.SchemaVersion
	out.IsSubmitted = r.IsSubmitted
	if r.IsSubmitted {
		out.Form.Status = StatusSubmitted
	}
	if out.LastUpdated.Before(r.LastUpdated) {
		out.LastUpdated = r.LastUpdated
	}
	now := time.Now().UTC()
	if now.After(out.LastUpdated) {
		out.LastUpdated = now
	}
	out.Recompute()
	return &out, nil
}

func deepMerge(dst, src map[string]any) {
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			deepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = value
	}
}
