package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ParameterKind is the variant of a parameter definition.
type ParameterKind string

const (
	ParameterKindDropdown ParameterKind = "dropdown"
	ParameterKindEnum     ParameterKind = "enum"
	ParameterKindNumeric  ParameterKind = "numeric"
	ParameterKindText     ParameterKind = "text"
	ParameterKindBoolean  ParameterKind = "boolean"
	ParameterKindOther    ParameterKind = "other"   // Well formed, type not recognised
	ParameterKindUnknown  ParameterKind = "unknown" // Malformed definition
)

// IsChoice reports whether values of this kind select among options.
func (k ParameterKind) IsChoice() bool {
	return k == ParameterKindDropdown || k == ParameterKindEnum
}

// ParameterOption is one selectable value of a choice parameter.
type ParameterOption struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Price any    `json:"price,omitempty"`
}

// Parameter is a service parameter definition. Definitions are author supplied and
// loosely validated, so decoding never fails: anything that cannot be understood is
// kept verbatim and reported as ParameterKindUnknown.
type Parameter struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name,omitempty"`
	Type                string            `json:"type,omitempty"`
	AllowMultipleValues bool              `json:"allowMultipleValues,omitempty"`
	Price               any               `json:"price,omitempty"`
	Options             []ParameterOption `json:"options,omitempty"`

	raw json.RawMessage
}

// Kind derives the parameter variant from its author supplied type.
func (p Parameter) Kind() ParameterKind {
	if p.raw != nil || p.ID == "" {
		return ParameterKindUnknown
	}

	switch strings.ToLower(strings.TrimSpace(p.Type)) {
	case "dropdown", "select":
		return ParameterKindDropdown
	case "enum":
		return ParameterKindEnum
	case "number", "numeric", "integer", "float":
		return ParameterKindNumeric
	case "text", "string", "textarea":
		return ParameterKindText
	case "boolean", "bool", "checkbox":
		return ParameterKindBoolean
	default:
		return ParameterKindOther
	}
}

// Raw returns the verbatim JSON of a malformed definition, or nil.
func (p Parameter) Raw() json.RawMessage {
	return p.raw
}

type parameterJSON struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name,omitempty"`
	Type                string            `json:"type,omitempty"`
	AllowMultipleValues bool              `json:"allowMultipleValues,omitempty"`
	Price               any               `json:"price,omitempty"`
	Options             []ParameterOption `json:"options,omitempty"`
}

// MarshalJSON writes malformed definitions back unchanged.
func (p Parameter) MarshalJSON() ([]byte, error) {
	if p.raw != nil {
		return p.raw, nil
	}

	return json.Marshal(parameterJSON{
		ID:                  p.ID,
		Name:                p.Name,
		Type:                p.Type,
		AllowMultipleValues: p.AllowMultipleValues,
		Price:               p.Price,
		Options:             p.Options,
	})
}

// UnmarshalJSON decodes a definition field by field and never returns an error.
func (p *Parameter) UnmarshalJSON(data []byte) error {
	*p = Parameter{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		p.raw = append(json.RawMessage(nil), data...)

		return nil
	}

	id, ok := looseID(fields["id"])
	if !ok {
		p.raw = append(json.RawMessage(nil), data...)

		return nil
	}

	p.ID = id
	_ = json.Unmarshal(fields["name"], &p.Name)
	_ = json.Unmarshal(fields["type"], &p.Type)
	p.AllowMultipleValues = bytes.Equal(bytes.TrimSpace(fields["allowMultipleValues"]), []byte("true"))

	if raw, ok := fields["price"]; ok {
		_ = json.Unmarshal(raw, &p.Price)
	}

	var options []json.RawMessage
	if err := json.Unmarshal(fields["options"], &options); err == nil {
		for _, rawOption := range options {
			if option, ok := decodeOption(rawOption); ok {
				p.Options = append(p.Options, option)
			}
		}
	}

	return nil
}

func decodeOption(data json.RawMessage) (ParameterOption, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return ParameterOption{}, false
	}

	id, ok := looseID(fields["id"])
	if !ok {
		return ParameterOption{}, false
	}

	option := ParameterOption{ID: id}
	_ = json.Unmarshal(fields["name"], &option.Name)

	if raw, ok := fields["price"]; ok {
		_ = json.Unmarshal(raw, &option.Price)
	}

	return option, true
}

// looseID accepts a non-empty string or a number.
func looseID(data json.RawMessage) (string, bool) {
	if len(data) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, s != ""
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}

	return "", false
}
