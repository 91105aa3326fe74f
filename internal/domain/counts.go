package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Counts is a string-keyed counter that iterates in first-seen key order.
// The zero value is ready to use.
type Counts struct {
	keys   []string
	values map[string]int
}

// NewCounts returns an empty Counts.
func NewCounts() *Counts {
	return &Counts{values: make(map[string]int)}
}

// Inc adds one to key, registering it on first sight.
func (c *Counts) Inc(key string) {
	c.Add(key, 1)
}

// Add adds delta to key, registering it on first sight.
func (c *Counts) Add(key string, delta int) {
	if c.values == nil {
		c.values = make(map[string]int)
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] += delta
}

// Get returns the count for key.
func (c *Counts) Get(key string) int {
	if c == nil {
		return 0
	}
	return c.values[key]
}

// Len returns the number of distinct keys.
func (c *Counts) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Keys returns the keys in first-seen order.
func (c *Counts) Keys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.keys...)
}

// Values returns the counts aligned with Keys.
func (c *Counts) Values() []int {
	if c == nil {
		return nil
	}
	out := make([]int, len(c.keys))
	for i, k := range c.keys {
		out[i] = c.values[k]
	}
	return out
}

// Equal reports whether both counters hold the same keys, order and counts.
func (c *Counts) Equal(other *Counts) bool {
	if c.Len() != other.Len() {
		return false
	}
	for i, k := range c.Keys() {
		if other.keys[i] != k || other.values[k] != c.values[k] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the counter as an object with keys in first-seen order.
func (c *Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if c != nil {
		for i, k := range c.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			val, err := json.Marshal(c.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping its key order.
func (c *Counts) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = Counts{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("counts: expected object, got %v", tok)
	}
	out := Counts{values: make(map[string]int)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var n int
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("counts: value of %q: %w", key, err)
		}
		out.Add(key, n)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}
