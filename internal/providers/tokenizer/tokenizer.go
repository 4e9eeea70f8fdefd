// Package tokenizer estimates prompt token counts ahead of dispatch, so the
// gateway can reject an over-length request with ContextLengthExceeded
// (spec §7) instead of waiting for the provider's own 400.
//
// Only an estimate is needed: every provider has its own tokenizer and the
// gateway never claims to match it exactly, so one encoding (cl100k_base,
// OpenAI's own GPT-4-era BPE) is used for every model family. That is close
// enough to catch the requests that are wildly over budget, which is the
// only case worth failing fast for.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	return enc, encErr
}

// Message is the minimal shape CountMessages needs; kept independent of
// providers.Message so this package has no import back into providers.
type Message struct {
	Role    string
	Content string
}

// CountMessages estimates the prompt token count for a chat request, using
// OpenAI's own per-message/per-role overhead accounting (4 tokens of framing
// per message, 3 for the reply primer) since every other provider's turn
// framing costs roughly the same order of tokens.
func CountMessages(messages []Message) (int, error) {
	tk, err := encoding()
	if err != nil {
		return 0, fmt.Errorf("tokenizer: load cl100k_base: %w", err)
	}
	total := 3
	for _, m := range messages {
		total += 4
		total += len(tk.Encode(m.Content, nil, nil))
		total += len(tk.Encode(m.Role, nil, nil))
	}
	return total, nil
}

// Count estimates the token count of a single string.
func Count(text string) (int, error) {
	tk, err := encoding()
	if err != nil {
		return 0, fmt.Errorf("tokenizer: load cl100k_base: %w", err)
	}
	return len(tk.Encode(text, nil, nil)), nil
}
