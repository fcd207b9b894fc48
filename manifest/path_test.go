package manifest

import (
	"encoding/json"
	"testing"
)

func decodeDoc(t *testing.T, s string) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return doc
}

func TestGetPath(t *testing.T) {
	doc := decodeDoc(t, `{
		"id": "chatcmpl-1",
		"usage": {"total_tokens": 42},
		"choices": [
			{"delta": {"content": "hi", "role": null}},
			{"delta": {"content": "there"}}
		]
	}`)

	tests := []struct {
		path string
		want any
		ok   bool
	}{
		{"id", "chatcmpl-1", true},
		{"usage.total_tokens", float64(42), true},
		{"choices[0].delta.content", "hi", true},
		{"choices[1].delta.content", "there", true},
		{"choices[*].delta.content", "hi", true},
		{"$.choices[0].delta.content", "hi", true},
		{"choices[0].delta.role", nil, true}, // JSON null resolves with ok=true
		{"choices[2].delta.content", nil, false},
		{"usage.prompt_tokens", nil, false},
		{"id.nested", nil, false},
		{"id[0]", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		got, ok := GetPath(doc, tt.path)
		if ok != tt.ok {
			t.Fatalf("GetPath(%q): ok=%v, want %v", tt.path, ok, tt.ok)
		}
		if ok && got != tt.want {
			t.Fatalf("GetPath(%q) = %#v, want %#v", tt.path, got, tt.want)
		}
	}
}

func TestGetPath_ChainedIndexes(t *testing.T) {
	var doc any
	if err := json.Unmarshal([]byte(`{"rows": [[1, 2], [3]]}`), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, ok := GetPath(doc, "rows[1][0]")
	if !ok || got != float64(3) {
		t.Fatalf("rows[1][0] = %v, ok=%v", got, ok)
	}
	if _, ok := GetPath(doc, "rows[1][1]"); ok {
		t.Fatalf("rows[1][1]: expected out of range")
	}
}

func TestSetPath(t *testing.T) {
	doc := map[string]any{}
	if !SetPath(doc, "message.content", "hello") {
		t.Fatalf("SetPath failed")
	}
	got, ok := GetPath(doc, "message.content")
	if !ok || got != "hello" {
		t.Fatalf("round trip = %v, ok=%v", got, ok)
	}

	// Non-object intermediates are replaced.
	doc = map[string]any{"usage": "n/a"}
	if !SetPath(doc, "usage.total_tokens", 7) {
		t.Fatalf("SetPath failed")
	}
	if got, _ := GetPath(doc, "usage.total_tokens"); got != 7 {
		t.Fatalf("total_tokens = %v", got)
	}
}

func TestSetPath_RejectsIndexedSegments(t *testing.T) {
	doc := map[string]any{}
	if SetPath(doc, "choices[0].content", "x") {
		t.Fatalf("expected indexed SetPath to fail")
	}
	if len(doc) != 0 {
		t.Fatalf("doc modified: %v", doc)
	}
}
