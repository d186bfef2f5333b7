// Package prompt provides token budgeting for prompts handed to the
// summarizer, keeping large collected source material inside the model's
// context window.
package prompt

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Budgeter counts and truncates text against a token budget.
type Budgeter struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
}

// NewBudgeter creates a budgeter for the given model's tokenizer.
// Unknown models fall back to cl100k_base.
func NewBudgeter(model string, maxTokens int) (*Budgeter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Budgeter{tokenizer: enc, maxTokens: maxTokens}, nil
}

// CountTokens returns the token count of text.
func (b *Budgeter) CountTokens(text string) int {
	return len(b.tokenizer.Encode(text, nil, nil))
}

// Truncate cuts text to the budget on a token boundary. Text already
// within budget is returned unchanged.
func (b *Budgeter) Truncate(text string) string {
	tokens := b.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= b.maxTokens {
		return text
	}
	return b.tokenizer.Decode(tokens[:b.maxTokens])
}
