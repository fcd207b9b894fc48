package manifest

import (
	"encoding/json"
	"testing"
)

func evalExpr(t *testing.T, expr, doc string) bool {
	t.Helper()
	m, err := CompileMatch(expr)
	if err != nil {
		t.Fatalf("CompileMatch(%q): %v", expr, err)
	}
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m.Eval(v)
}

func TestMatchExpr_Eval(t *testing.T) {
	tests := []struct {
		expr string
		doc  string
		want bool
	}{
		{`exists(choices[0].delta.content)`, `{"choices":[{"delta":{"content":""}}]}`, true},
		{`exists(choices[0].delta.content)`, `{"choices":[{"delta":{}}]}`, false},

		{`type == 'message_stop'`, `{"type":"message_stop"}`, true},
		{`type == 'message_stop'`, `{"type":"message_delta"}`, false},
		{`type == "message_stop"`, `{"type":"message_stop"}`, true},

		{`choices[0].finish_reason != null`, `{"choices":[{"finish_reason":"stop"}]}`, true},
		{`choices[0].finish_reason != null`, `{"choices":[{"finish_reason":null}]}`, false},
		{`choices[0].finish_reason == null`, `{"choices":[{"finish_reason":null}]}`, true},
		{`choices[0].finish_reason == null`, `{"choices":[{}]}`, true},
		{`choices[0].finish_reason == null`, `{"choices":[{"finish_reason":"stop"}]}`, false},

		{`type in ['content_block_delta', 'message_delta']`, `{"type":"message_delta"}`, true},
		{`type in ['content_block_delta', 'message_delta']`, `{"type":"ping"}`, false},

		// Non-string fields compare via their JSON encoding.
		{`choices[0].index == 0`, `{"choices":[{"index":0}]}`, true},
		{`done == true`, `{"done":true}`, true},
		{`done == true`, `{"done":false}`, false},

		{`type == 'a' && delta.text != null`, `{"type":"a","delta":{"text":"x"}}`, true},
		{`type == 'a' && delta.text != null`, `{"type":"a","delta":{}}`, false},
		{`type == 'a' || type == 'b'`, `{"type":"b"}`, true},
		{`type == 'a' || type == 'b'`, `{"type":"c"}`, false},

		// Indexing an empty array does not resolve, so == null holds.
		{`usage != null && choices[0] == null`, `{"usage":{"total_tokens":1},"choices":[]}`, true},
		{`usage != null && choices[0] == null`, `{"usage":{"total_tokens":1},"choices":[{}]}`, false},
	}
	for _, tt := range tests {
		if got := evalExpr(t, tt.expr, tt.doc); got != tt.want {
			t.Fatalf("eval %q against %s = %v, want %v", tt.expr, tt.doc, got, tt.want)
		}
	}
}

func TestMatchExpr_EvalNeverMutates(t *testing.T) {
	m, err := CompileMatch(`choices[0].delta.content != null`)
	if err != nil {
		t.Fatalf("CompileMatch: %v", err)
	}
	doc := decodeDoc(t, `{"choices":[{"delta":{"content":"x"}}]}`)
	for i := 0; i < 3; i++ {
		if !m.Eval(doc) {
			t.Fatalf("Eval pass %d = false", i)
		}
	}
}

func TestCompileMatch_Errors(t *testing.T) {
	for _, expr := range []string{
		"",
		"type",
		"type in 'a'",
		"exists()",
		"&& type == 'a'",
		"type == 'a' || ",
	} {
		if _, err := CompileMatch(expr); err == nil {
			t.Fatalf("CompileMatch(%q): expected error", expr)
		}
	}
}
