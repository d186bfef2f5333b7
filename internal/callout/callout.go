// Package callout encodes embeddable component payloads into the labeled
// block syntax used inside artifact content. A block carries the component
// type plus its JSON input twice: Base64-encoded in the attribute for
// machine decoding, and verbatim in the body for plain-text fallback.
//
//	:::callout {type="flash-card" content="<base64 json>"}
//
//	<json>
//
//	:::
package callout

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
)

// Block is a decoded callout block.
type Block struct {
	Type  string
	Input json.RawMessage
}

var blockRe = regexp.MustCompile(`(?s)^:::callout \{type="([^"]+)" content="([^"]*)"\}\n\n(.*)\n\n:::$`)

// Encode serializes a component invocation into a callout block.
func Encode(componentType string, input any) (string, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshal component input: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	return fmt.Sprintf(":::callout {type=%q content=%q}\n\n%s\n\n:::", componentType, encoded, raw), nil
}

// Decode parses a callout block and returns the component type and input.
// The Base64 attribute is authoritative; the body is ignored beyond syntax.
func Decode(block string) (Block, error) {
	m := blockRe.FindStringSubmatch(block)
	if m == nil {
		return Block{}, fmt.Errorf("malformed callout block")
	}
	raw, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return Block{}, fmt.Errorf("decode content attribute: %w", err)
	}
	if !json.Valid(raw) {
		return Block{}, fmt.Errorf("content attribute is not valid JSON")
	}
	return Block{Type: m[1], Input: json.RawMessage(raw)}, nil
}
