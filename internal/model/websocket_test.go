package model

import (
	"encoding/json"
	"testing"
)

func TestJobEventFieldNames(t *testing.T) {
	data, err := json.Marshal(JobEvent{RecordID: "r1", Kind: JobKindClip, Status: JobStatusProcessing, At: 1700000000})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"recordId", "kind", "status", "progress", "channel", "happenedAt"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("expected key %q in %s", key, data)
		}
	}
	if _, ok := fields["happened_at"]; ok {
		t.Errorf("unexpected snake_case key in %s", data)
	}
}
