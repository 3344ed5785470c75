package resolve

import (
	"encoding/json"
	"iter"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Config is the set of cache entries passed to the native build, kept in the
// order rules produced them so command lines are reproducible.
type Config struct {
	om *orderedmap.OrderedMap[string, string]
}

func NewConfig() *Config {
	return &Config{om: orderedmap.New[string, string]()}
}

// Set records key. Setting an existing key replaces its value and keeps its
// original position.
func (c *Config) Set(key, value string) {
	c.om.Set(key, value)
}

func (c *Config) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.om.Get(key)
}

func (c *Config) Len() int {
	if c == nil {
		return 0
	}
	return c.om.Len()
}

// All iterates over entries in insertion order.
func (c *Config) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if c == nil {
			return
		}
		for pair := c.om.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

func (c *Config) Keys() []string {
	keys := make([]string, 0, c.Len())
	for k := range c.All() {
		keys = append(keys, k)
	}
	return keys
}

// MarshalJSON preserves entry order.
func (c *Config) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	return json.Marshal(c.om)
}
