// Package formdata reconciles the canonical and legacy shapes of submitted parameter
// values into the canonical ordered list.
package formdata

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/dukex/labflow/pkg/models"
)

// Set is a set of parameter ids.
type Set map[string]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...string) Set {
	set := make(Set, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	return set
}

// Has reports whether id is in the set. A nil set is empty.
func (s Set) Has(id string) bool {
	_, ok := s[id]

	return ok
}

// MultiValueIDs returns the ids of parameters that accept a list of values.
// Malformed definitions are never multi-value.
func MultiValueIDs(parameters []models.Parameter) Set {
	set := make(Set)

	for _, parameter := range parameters {
		if parameter.Kind() == models.ParameterKindUnknown {
			continue
		}

		if parameter.AllowMultipleValues {
			set[parameter.ID] = struct{}{}
		}
	}

	return set
}

// Normalize converts raw submitted form data into the canonical shape. It accepts the
// canonical list of {id, value} entries or the legacy object keyed by parameter id.
// Any other shape yields an empty list, and list entries without a string id are
// dropped. Normalize never fails.
func Normalize(raw any, multiValue Set) models.FormData {
	out := models.FormData{}

	switch data := raw.(type) {
	case nil:
		return out
	case json.RawMessage:
		return Normalize(decode(data), multiValue)
	case []byte:
		return Normalize(decode(data), multiValue)
	case models.FormData:
		return normalizeEntries(data, multiValue)
	case []models.FormDataEntry:
		return normalizeEntries(data, multiValue)
	case []any:
		return normalizeItems(data, multiValue)
	case []map[string]any:
		return normalizeItems(data, multiValue)
	case map[string]any:
		keys := make([]string, 0, len(data))
		for key := range data {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		for _, key := range keys {
			out = append(out, models.FormDataEntry{ID: key, Value: Coerce(data[key], key, multiValue)})
		}

		return out
	default:
		return out
	}
}

// Coerce shapes a single value for a parameter id. Multi-value parameters always get
// a list; single-value parameters collapse a list to its first element.
func Coerce(value any, id string, multiValue Set) any {
	list, isList := asList(value)

	if multiValue.Has(id) {
		if value == nil {
			return []any{}
		}

		if isList {
			if list == nil {
				return []any{}
			}

			return list
		}

		return []any{value}
	}

	if isList {
		if len(list) == 0 {
			return nil
		}

		return list[0]
	}

	return value
}

// normalizeItems keeps the list items that decode as entries, in order.
func normalizeItems[T any](items []T, multiValue Set) models.FormData {
	out := models.FormData{}

	for _, item := range items {
		if entry, ok := entryFromAny(item); ok {
			out = append(out, models.FormDataEntry{ID: entry.ID, Value: Coerce(entry.Value, entry.ID, multiValue)})
		}
	}

	return out
}

func normalizeEntries(entries []models.FormDataEntry, multiValue Set) models.FormData {
	out := make(models.FormData, 0, len(entries))

	for _, entry := range entries {
		if entry.ID == "" {
			continue
		}

		out = append(out, models.FormDataEntry{ID: entry.ID, Value: Coerce(entry.Value, entry.ID, multiValue)})
	}

	return out
}

func entryFromAny(item any) (models.FormDataEntry, bool) {
	fields, ok := item.(map[string]any)
	if !ok {
		return models.FormDataEntry{}, false
	}

	id, ok := fields["id"].(string)
	if !ok || id == "" {
		return models.FormDataEntry{}, false
	}

	return models.FormDataEntry{ID: id, Value: fields["value"]}, true
}

// asList reports whether value is a list and returns it as []any. Byte slices and
// strings are scalars.
func asList(value any) ([]any, bool) {
	switch list := value.(type) {
	case nil:
		return nil, false
	case []any:
		return list, true
	case []byte:
		return nil, false
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out, true
}

func decode(data []byte) any {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil
	}

	return value
}
