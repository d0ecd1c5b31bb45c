package finance

import (
	"bytes"
	"encoding/json"
	"time"
)

// Document is a provider response held as a raw JSON tree with typed
// accessors. Missing or mistyped fields are reported through ok flags
// instead of silently chained fallbacks, so gaps in a provider's shape stay
// visible and testable.
type Document struct {
	root any
}

// ParseDocument decodes raw into a Document. Numbers are kept as
// json.Number so integer fields survive untruncated.
func ParseDocument(raw json.RawMessage) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

// Path descends through nested objects. It never returns nil; descending
// through a missing key yields an empty document whose accessors all report
// absent.
func (d *Document) Path(keys ...string) *Document {
	cur := d.root
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return &Document{}
		}
		cur, ok = obj[k]
		if !ok {
			return &Document{}
		}
	}
	return &Document{root: cur}
}

// Str returns the string at the given path.
func (d *Document) Str(keys ...string) (string, bool) {
	s, ok := d.Path(keys...).root.(string)
	return s, ok
}

// Float returns the number at the given path as a float64.
func (d *Document) Float(keys ...string) (float64, bool) {
	n, ok := d.Path(keys...).root.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int returns the number at the given path as an int64, truncating any
// fractional part.
func (d *Document) Int(keys ...string) (int64, bool) {
	n, ok := d.Path(keys...).root.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

// Date returns the value at the given path parsed as an RFC 3339 timestamp
// or a plain YYYY-MM-DD date.
func (d *Document) Date(keys ...string) (time.Time, bool) {
	s, ok := d.Str(keys...)
	if !ok {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Array returns the elements of the array at the given path.
func (d *Document) Array(keys ...string) ([]*Document, bool) {
	arr, ok := d.Path(keys...).root.([]any)
	if !ok {
		return nil, false
	}
	docs := make([]*Document, len(arr))
	for i, el := range arr {
		docs[i] = &Document{root: el}
	}
	return docs, true
}

// Keys returns the field names of the object at the given path.
func (d *Document) Keys(keys ...string) ([]string, bool) {
	obj, ok := d.Path(keys...).root.(map[string]any)
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	return names, true
}

// Exists reports whether the path resolves to any value.
func (d *Document) Exists(keys ...string) bool {
	return d.Path(keys...).root != nil
}
