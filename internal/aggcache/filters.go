package aggcache

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedFilters is returned when a filter value has an unsupported type.
// It is raised synchronously, before any fetch is attempted.
var ErrMalformedFilters = errors.New("malformed filters")

// Filters is the set of named parameters scoping an aggregation request.
// Values must be scalars (string, bool, integer or float) or nil.
// A nil value is equivalent to omitting the field entirely.
type Filters map[string]any

// Key derives the deterministic cache key for an (endpoint, filters) pair.
// Two filter maps with the same entries always produce the same key,
// regardless of construction order. Nil-valued fields are skipped so that
// call sites that pass explicit nils and call sites that omit the field
// share an entry.
func Key(endpoint string, filters Filters) (string, error) {
	if len(filters) == 0 {
		return endpoint, nil
	}

	names := make([]string, 0, len(filters))
	for name := range filters {
		if filters[name] == nil {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return endpoint, nil
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		formatted, err := formatFilterValue(filters[name])
		if err != nil {
			return "", fmt.Errorf("%w: field %q: %w", ErrMalformedFilters, name, err)
		}
		parts = append(parts, fmt.Sprintf("%s=%s", name, formatted))
	}

	return fmt.Sprintf("%s?%s", endpoint, strings.Join(parts, "&")), nil
}

func formatFilterValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return strconv.Quote(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 64), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}
