package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates token usage for context budgeting. The cl100k_base
// encoding is loaded lazily; if the encoding data cannot be loaded we fall
// back to the rough len/4 heuristic rather than failing the request.
type Counter struct {
	once sync.Once
	tk   *tiktoken.Tiktoken
}

func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(func() {
		tk, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.tk = tk
		}
	})
	if c.tk == nil {
		return len(text) / 4
	}
	return len(c.tk.Encode(text, nil, nil))
}
