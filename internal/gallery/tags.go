package gallery

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tags is an ordered map of namespace to tag list. Namespace insertion order
// is preserved across JSON round-trips so stored snapshots diff
// deterministically against freshly scraped ones.
type Tags struct {
	order []string
	m     map[string][]string
}

// NewTags returns an empty tag set.
func NewTags() *Tags {
	return &Tags{m: make(map[string][]string)}
}

// Set appends or replaces the tag list for a namespace. A new namespace is
// appended at the end of the iteration order.
func (t *Tags) Set(namespace string, tags []string) {
	if _, ok := t.m[namespace]; !ok {
		t.order = append(t.order, namespace)
	}
	t.m[namespace] = append([]string(nil), tags...)
}

// Get returns the tags of a namespace.
func (t *Tags) Get(namespace string) []string {
	return t.m[namespace]
}

// Namespaces returns the namespaces in insertion order.
func (t *Tags) Namespaces() []string {
	return append([]string(nil), t.order...)
}

// Len returns the number of namespaces.
func (t *Tags) Len() int {
	return len(t.order)
}

// Equal reports whether both tag sets hold the same namespaces in the same
// order with the same tag lists.
func (t *Tags) Equal(other *Tags) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.order) != len(other.order) {
		return false
	}
	for i, ns := range t.order {
		if other.order[i] != ns {
			return false
		}
		a, b := t.m[ns], other.m[ns]
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if a[j] != b[j] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON renders the namespaces as a JSON object in insertion order.
func (t *Tags) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ns := range t.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ns)
		if err != nil {
			return nil, fmt.Errorf("marshal namespace: %w", err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(t.m[ns])
		if err != nil {
			return nil, fmt.Errorf("marshal tags: %w", err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping the textual key order.
func (t *Tags) UnmarshalJSON(data []byte) error {
	t.order = nil
	t.m = make(map[string][]string)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read tags: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("tags: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read namespace: %w", err)
		}
		ns, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("tags: non-string namespace %v", keyTok)
		}
		var tags []string
		if err := dec.Decode(&tags); err != nil {
			return fmt.Errorf("read tags of %q: %w", ns, err)
		}
		t.Set(ns, tags)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read tags close: %w", err)
	}
	return nil
}
