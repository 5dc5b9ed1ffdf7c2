package exception

import (
	"sort"
)

// Count is one counter entry.
type Count struct {
	Name  string
	Count int
}

// Counter tallies names and remembers the order they were first seen in.
type Counter struct {
	order  []string
	counts map[string]int
}

// NewCounter returns an empty counter
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Observe registers a name at zero without counting it.
func (c *Counter) Observe(name string) {
	if _, ok := c.counts[name]; ok {
		return
	}
	c.order = append(c.order, name)
	c.counts[name] = 0
}

// Inc counts one contribution for name.
func (c *Counter) Inc(name string) {
	c.Observe(name)
	c.counts[name]++
}

// Get returns the current count for name.
func (c *Counter) Get(name string) int {
	return c.counts[name]
}

// Len is the number of distinct names seen
func (c *Counter) Len() int {
	return len(c.order)
}

// Descending lists entries by count, highest first. Equal counts keep the
// order the names were first seen in.
func (c *Counter) Descending() []Count {
	out := c.entries()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// ByName lists entries in ascending name order. Used for YYYY-MM-DD dates,
// whose lexical order is calendar order.
func (c *Counter) ByName() []Count {
	out := c.entries()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func (c *Counter) entries() []Count {
	out := make([]Count, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, Count{Name: name, Count: c.counts[name]})
	}
	return out
}
