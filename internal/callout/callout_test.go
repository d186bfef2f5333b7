package callout

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	input := map[string]any{"question": "Capital of France?", "answer": "Paris"}
	block, err := Encode("flash-card", input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if !strings.HasPrefix(block, `:::callout {type="flash-card" content="`) {
		t.Errorf("unexpected block prefix: %q", block)
	}
	if !strings.HasSuffix(block, "\n\n:::") {
		t.Errorf("unexpected block suffix: %q", block)
	}

	decoded, err := Decode(block)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != "flash-card" {
		t.Errorf("expected type flash-card, got %q", decoded.Type)
	}

	var got map[string]any
	if err := json.Unmarshal(decoded.Input, &got); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if got["answer"] != "Paris" {
		t.Errorf("input lost in round trip: %v", got)
	}
}

func TestDecodeUsesAttributeNotBody(t *testing.T) {
	attr := base64.StdEncoding.EncodeToString([]byte(`{"from":"attribute"}`))
	block := `:::callout {type="flash-card" content="` + attr + `"}` +
		"\n\n" + `{"from":"body"}` + "\n\n:::"

	decoded, err := Decode(block)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded.Input) != `{"from":"attribute"}` {
		t.Errorf("expected attribute payload, got %s", decoded.Input)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name  string
		block string
	}{
		{"not a callout", "hello world"},
		{"missing terminator", `:::callout {type="x" content="e30="}` + "\n\n{}\n\n"},
		{"bad base64", `:::callout {type="x" content="!!!"}` + "\n\n{}\n\n:::"},
		{"attribute not json", `:::callout {type="x" content="` + base64.StdEncoding.EncodeToString([]byte("nope{")) + `"}` + "\n\n{}\n\n:::"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.block); err == nil {
				t.Error("expected error")
			}
		})
	}
}
