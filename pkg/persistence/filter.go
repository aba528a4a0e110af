package persistence

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Matcher evaluates a Filter against JSON encoded documents. Backends without a native
// query language share it.
type Matcher struct {
	want map[string]any
}

// NewMatcher normalizes the filter values through JSON so they compare equal to
// decoded document fields.
func NewMatcher(filter Filter) (*Matcher, error) {
	want := map[string]any{}

	if len(filter) > 0 {
		data, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to encode filter: %w", err)
		}

		if err := json.Unmarshal(data, &want); err != nil {
			return nil, fmt.Errorf("failed to decode filter: %w", err)
		}
	}

	return &Matcher{want: want}, nil
}

// Match reports whether the encoded document satisfies the filter.
func (m *Matcher) Match(doc []byte) (bool, error) {
	if len(m.want) == 0 {
		return true, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return false, fmt.Errorf("failed to decode document: %w", err)
	}

	for key, value := range m.want {
		if !reflect.DeepEqual(fields[key], value) {
			return false, nil
		}
	}

	return true, nil
}
