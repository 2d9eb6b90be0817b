package jsonpath_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/insight-crawler/internal/jsonpath"
)

const sampleDoc = `{
	"data": {
		"items": [
			{"title": "First", "meta": {"views": 120}},
			{"title": "Second", "meta": {"views": 80}}
		],
		"total": 2
	}
}`

func decode(t *testing.T) any {
	t.Helper()

	var doc any
	require.NoError(t, json.Unmarshal([]byte(sampleDoc), &doc))

	return doc
}

func TestLookupNestedPath(t *testing.T) {
	doc := decode(t)

	v, err := jsonpath.String(doc, "data.items.0.title")

	require.NoError(t, err)
	assert.Equal(t, "First", v)
}

func TestLookupNumberRendering(t *testing.T) {
	doc := decode(t)

	v, err := jsonpath.String(doc, "data.items.1.meta.views")

	require.NoError(t, err)
	assert.Equal(t, "80", v)
}

func TestArray(t *testing.T) {
	doc := decode(t)

	arr, err := jsonpath.Array(doc, "data.items")

	require.NoError(t, err)
	assert.Len(t, arr, 2)
}

func TestMissingFieldIsNotFound(t *testing.T) {
	doc := decode(t)

	_, err := jsonpath.Lookup(doc, "data.nope")

	assert.ErrorIs(t, err, jsonpath.ErrNotFound)
}

func TestWrongTypeIsDistinct(t *testing.T) {
	doc := decode(t)

	// "total" is a number; descending into it is a type error, not a
	// missing field.
	_, err := jsonpath.Lookup(doc, "data.total.value")
	assert.ErrorIs(t, err, jsonpath.ErrWrongType)

	// An array indexed by a non-numeric segment is also a type error.
	_, err = jsonpath.Lookup(doc, "data.items.first")
	assert.ErrorIs(t, err, jsonpath.ErrWrongType)

	// An object resolved where a string is wanted.
	_, err = jsonpath.String(doc, "data.items.0.meta")
	assert.ErrorIs(t, err, jsonpath.ErrWrongType)
}

func TestOutOfRangeIndexIsNotFound(t *testing.T) {
	doc := decode(t)

	_, err := jsonpath.Lookup(doc, "data.items.5")

	assert.ErrorIs(t, err, jsonpath.ErrNotFound)
}

func TestEmptyPathReturnsDocument(t *testing.T) {
	doc := decode(t)

	v, err := jsonpath.Lookup(doc, "")

	require.NoError(t, err)
	assert.Equal(t, doc, v)
}
