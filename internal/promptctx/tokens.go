package promptctx

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerTokenHeuristic is the 4-chars-per-token degrade path Count uses
// if the tokenizer fails to load. The cross-channel per-group overhead
// estimate uses its own constant, crossChannelCharsPerToken.
const charsPerTokenHeuristic = 4

// TokenCounter measures prompt text the way the model itself will be
// billed for it. Grounded on the kadirpekel-hector example repo's use of
// github.com/pkoukk/tiktoken-go: the teacher only ever estimates tokens
// via length heuristics, so this is an enrichment pulled from the wider
// example pack to give real tokenizer backing to countTextTokens.
type TokenCounter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the cl100k_base encoding (the GPT-3.5/4 family
// encoding, close enough across the OpenAI-compatible providers this
// orchestrator targets). If the encoding can't be loaded — e.g. no
// network access to fetch the BPE ranks file on first use — Count falls
// back to the 4-chars-per-token heuristic rather than failing prompt
// assembly.
func NewTokenCounter() *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// Count returns the token count of s.
func (c *TokenCounter) Count(s string) int {
	if c.enc == nil {
		return heuristicCount(s)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(s, nil, nil))
}

func heuristicCount(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) / charsPerTokenHeuristic
	if n == 0 {
		n = 1
	}
	return n
}
