// Package jsonpath evaluates dotted paths over decoded JSON values.
// "Field missing" and "field present but wrong type" are distinct
// outcomes so callers can tell a bad mapping from a bad response.
package jsonpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotFound means a path segment did not exist in the document.
	ErrNotFound = errors.New("jsonpath: path not found")
	// ErrWrongType means the path resolved but the value (or an
	// intermediate node) had an unexpected type.
	ErrWrongType = errors.New("jsonpath: wrong type")
)

// Lookup walks a dotted path over a decoded JSON value. Segments index
// into objects by key; a numeric segment indexes into an array. An empty
// path returns the document itself.
func Lookup(doc any, path string) (any, error) {
	if strings.TrimSpace(path) == "" {
		return doc, nil
	}

	current := doc

	for _, seg := range strings.Split(path, ".") {
		next, err := step(current, seg)
		if err != nil {
			return nil, fmt.Errorf("%w at %q", err, seg)
		}

		current = next
	}

	return current, nil
}

// step resolves one path segment against the current node.
func step(node any, seg string) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		child, ok := v[seg]
		if !ok {
			return nil, ErrNotFound
		}

		return child, nil
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return nil, ErrWrongType
		}

		if idx < 0 || idx >= len(v) {
			return nil, ErrNotFound
		}

		return v[idx], nil
	default:
		return nil, ErrWrongType
	}
}

// String resolves a path to a string. Numbers are rendered; other types
// are ErrWrongType.
func String(doc any, path string) (string, error) {
	v, err := Lookup(doc, path)
	if err != nil {
		return "", err
	}

	switch s := v.(type) {
	case string:
		return s, nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(s), nil
	default:
		return "", fmt.Errorf("%w: %T at %q", ErrWrongType, v, path)
	}
}

// Array resolves a path to a JSON array.
func Array(doc any, path string) ([]any, error) {
	v, err := Lookup(doc, path)
	if err != nil {
		return nil, err
	}

	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %T at %q", ErrWrongType, v, path)
	}

	return arr, nil
}
