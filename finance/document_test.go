package finance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *Document {
	t.Helper()
	doc, err := ParseDocument(json.RawMessage(raw))
	require.NoError(t, err)
	return doc
}

func TestDocumentAccessors(t *testing.T) {
	doc := mustParse(t, `{
		"name": "Acme",
		"price": 101.5,
		"volume": 9007199254740993,
		"nested": {"deep": {"flag": true}},
		"items": [{"v": 1}, {"v": 2}]
	}`)

	s, ok := doc.Str("name")
	assert.True(t, ok)
	assert.Equal(t, "Acme", s)

	f, ok := doc.Float("price")
	assert.True(t, ok)
	assert.Equal(t, 101.5, f)

	// large integers survive UseNumber without float truncation
	i, ok := doc.Int("volume")
	assert.True(t, ok)
	assert.Equal(t, int64(9007199254740993), i)

	assert.True(t, doc.Exists("nested", "deep", "flag"))

	items, ok := doc.Array("items")
	require.True(t, ok)
	require.Len(t, items, 2)
	v, ok := items[1].Int("v")
	assert.True(t, ok)
	assert.Equal(t, int64(2), v)
}

func TestDocumentMissingPaths(t *testing.T) {
	doc := mustParse(t, `{"a": {"b": 1}}`)

	_, ok := doc.Str("a", "missing")
	assert.False(t, ok)

	_, ok = doc.Float("a") // object, not a number
	assert.False(t, ok)

	_, ok = doc.Array("a", "b") // number, not an array
	assert.False(t, ok)

	assert.False(t, doc.Exists("x", "y", "z"))

	// descending through a scalar reports absent rather than panicking
	_, ok = doc.Str("a", "b", "c")
	assert.False(t, ok)
}

func TestDocumentTypeMismatch(t *testing.T) {
	doc := mustParse(t, `{"n": "12.5", "s": 3}`)

	_, ok := doc.Float("n")
	assert.False(t, ok, "numeric strings are not numbers")

	_, ok = doc.Str("s")
	assert.False(t, ok)
}

func TestDocumentDate(t *testing.T) {
	doc := mustParse(t, `{"plain": "2024-03-15", "rfc": "2024-03-15T10:30:00Z", "junk": "soon"}`)

	d, ok := doc.Date("plain")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), d)

	d, ok = doc.Date("rfc")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), d)

	_, ok = doc.Date("junk")
	assert.False(t, ok)
}

func TestDocumentKeys(t *testing.T) {
	doc := mustParse(t, `{"units": {"USD": [], "EUR": []}}`)

	names, ok := doc.Keys("units")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"USD", "EUR"}, names)

	_, ok = doc.Keys("units", "USD")
	assert.False(t, ok, "arrays have no field names")
}
