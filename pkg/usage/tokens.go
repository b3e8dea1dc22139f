package usage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// encodingForModel maps OpenAI-family model prefixes to tiktoken encodings.
var encodingForModel = []struct {
	prefix   string
	encoding tokenizer.Encoding
}{
	{"gpt-4o", tokenizer.O200kBase},
	{"gpt-4.1", tokenizer.O200kBase},
	{"gpt-5", tokenizer.O200kBase},
	{"o1", tokenizer.O200kBase},
	{"o3", tokenizer.O200kBase},
	{"o4", tokenizer.O200kBase},
	{"gpt-4", tokenizer.Cl100kBase},
	{"gpt-3.5", tokenizer.Cl100kBase},
}

var (
	codecMu sync.Mutex
	codecs  = map[tokenizer.Encoding]tokenizer.Codec{}
)

// EstimateTokens returns the token count of text when a log entry carries no
// usage block. OpenAI-family models are counted with tiktoken; everything
// else uses a 4-characters-per-token estimate.
func EstimateTokens(text, provider, model string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	if !isOpenAIFamily(provider, model) {
		return estimateByLength(text), nil
	}

	enc := tokenizer.Cl100kBase
	m := strings.ToLower(model)
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	for _, e := range encodingForModel {
		if strings.HasPrefix(m, e.prefix) {
			enc = e.encoding
			break
		}
	}

	codec, err := codecFor(enc)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode text: %w", err)
	}
	return int64(len(ids)), nil
}

func codecFor(enc tokenizer.Encoding) (tokenizer.Codec, error) {
	codecMu.Lock()
	defer codecMu.Unlock()

	if c, ok := codecs[enc]; ok {
		return c, nil
	}
	c, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", enc, err)
	}
	codecs[enc] = c
	return c, nil
}

func isOpenAIFamily(provider, model string) bool {
	if strings.EqualFold(provider, "openai") {
		return true
	}
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "gpt-") || strings.HasPrefix(m, "openai/")
}

// estimateByLength rounds up so any non-empty text costs at least one token.
func estimateByLength(text string) int64 {
	return int64((len(text) + 3) / 4)
}
