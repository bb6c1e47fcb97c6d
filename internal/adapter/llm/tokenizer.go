// Package llm provides shared helpers for model adapters.
package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	defaultEncoder *tiktoken.Tiktoken
	encoderOnce    sync.Once
	encoderErr     error
)

// getEncoder returns the shared tiktoken encoder, initializing it lazily.
// Uses cl100k_base encoding which is a reasonable approximation for the
// models reachable through an OpenAI-compatible endpoint.
func getEncoder() (*tiktoken.Tiktoken, error) {
	encoderOnce.Do(func() {
		defaultEncoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return defaultEncoder, encoderErr
}

// EstimateTokens returns an estimated token count for the given text using
// the cl100k_base encoding. Used for logging prompt sizes; exact counts come
// back from the API itself.
func EstimateTokens(text string) int {
	enc, err := getEncoder()
	if err != nil {
		// Fallback to character-based estimate if tiktoken fails
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
