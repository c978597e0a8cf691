package analyzer

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// CountTokens returns the cl100k_base token count of text. It is an
// approximation for local models, which is all segmentation needs.
func CountTokens(text string) (int, error) {
	c, err := getCodec()
	if err != nil {
		return 0, err
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// truncateTokens cuts text to at most max tokens.
func truncateTokens(text string, max int) (string, error) {
	c, err := getCodec()
	if err != nil {
		return "", err
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return "", err
	}
	if len(ids) <= max {
		return text, nil
	}
	return c.Decode(ids[:max])
}
