package models

// FormDataEntry is one submitted parameter value. Value is a scalar, or a list of
// scalars for multi-value parameters.
type FormDataEntry struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// FormData is the canonical, ordered shape of submitted parameter values.
type FormData []FormDataEntry

// Lookup returns the value submitted for a parameter id.
func (f FormData) Lookup(id string) (any, bool) {
	for _, entry := range f {
		if entry.ID == id {
			return entry.Value, true
		}
	}

	return nil, false
}

// AsMap returns the id to value mapping of the form data.
func (f FormData) AsMap() map[string]any {
	out := make(map[string]any, len(f))
	for _, entry := range f {
		out[entry.ID] = entry.Value
	}

	return out
}
