package kpi

import (
	"strings"
)

// Context holds the named values visible to formulas for one scope member
// and month. A nil value is present but null.
type Context map[string]*float64

// Lookup finds a name exactly, then by its lower-case form.
func (c Context) Lookup(name string) (*float64, bool) {
	if v, ok := c[name]; ok {
		return v, true
	}
	v, ok := c[strings.ToLower(name)]
	return v, ok
}

// Has reports whether name is present, possibly with a null value.
func (c Context) Has(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// Values returns the non-null entries.
func (c Context) Values() map[string]float64 {
	out := make(map[string]float64, len(c))
	for k, v := range c {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

func (c Context) clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
