package pricing_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parameterService(t *testing.T, parameters string) *models.Service {
	t.Helper()

	service := &models.Service{ID: "svc", Name: "Sequencing", PricingMode: models.PricingModeParameter}
	require.NoError(t, json.Unmarshal([]byte(parameters), &service.Parameters))

	return service
}

func TestCalculateCost_ServiceModeIgnoresParameters(t *testing.T) {
	t.Parallel()

	service := &models.Service{
		ID:    "svc",
		Name:  "Plasmid prep",
		Price: 100,
		Parameters: []models.Parameter{
			{ID: "samples", Type: "text", Price: 5, AllowMultipleValues: true},
		},
	}

	inputs := []any{
		nil,
		map[string]any{"samples": []any{"a", "b", "c"}},
		"garbage",
	}

	for _, input := range inputs {
		assert.InDelta(t, 100.0, pricing.CalculateCost(service, input), 1e-9)
	}
}

func TestCalculateCost_ServiceModePriceShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		price    any
		opts     []pricing.Option
		expected float64
	}{
		{name: "number", price: 42.5, expected: 42.5},
		{name: "numeric string", price: " 12 ", expected: 12},
		{name: "unparsable uses fallback", price: "call us", opts: []pricing.Option{pricing.WithFallbackCost(7)}, expected: 7},
		{name: "missing uses fallback", price: nil, opts: []pricing.Option{pricing.WithFallbackCost(3)}, expected: 3},
		{name: "missing without fallback", price: nil, expected: 0},
		{name: "infinite is absent", price: math.Inf(1), expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			service := &models.Service{ID: "svc", Name: "Flat", Price: tt.price}
			assert.InDelta(t, tt.expected, pricing.CalculateCost(service, nil, tt.opts...), 1e-9)
		})
	}
}

func TestCalculateCost_OptionLevelPrecedence(t *testing.T) {
	t.Parallel()

	service := parameterService(t, `[
		{"id": "kit", "type": "dropdown", "price": 1000, "options": [
			{"id": "a", "name": "Small", "price": 10},
			{"id": "b", "name": "Large", "price": 20}
		]}
	]`)

	assert.InDelta(t, 20.0, pricing.CalculateCost(service, []any{map[string]any{"id": "kit", "value": "b"}}), 1e-9)
	assert.InDelta(t, 20.0, pricing.CalculateCost(service, map[string]any{"kit": "b"}), 1e-9)
}

func TestCalculateCost_OptionLevelMultiValue(t *testing.T) {
	t.Parallel()

	service := parameterService(t, `[
		{"id": "stains", "type": "enum", "allowMultipleValues": true, "options": [
			{"id": "gram", "price": "4.5"},
			{"id": "acid-fast", "price": 6},
			{"id": "free"}
		]}
	]`)

	cost := pricing.CalculateCost(service, map[string]any{"stains": []any{"gram", "acid-fast", "free", "unknown"}})

	assert.InDelta(t, 10.5, cost, 1e-9)
}

func TestCalculateCost_OptionMatchedByID(t *testing.T) {
	t.Parallel()

	service := parameterService(t, `[
		{"id": "kit", "type": "dropdown", "options": [{"id": "1", "name": "Large", "price": 30}]}
	]`)

	assert.InDelta(t, 30.0, pricing.CalculateCost(service, map[string]any{"kit": 1.0}), 1e-9)
	assert.InDelta(t, 30.0, pricing.CalculateCost(service, map[string]any{"kit": "1"}), 1e-9)
	assert.InDelta(t, 0.0, pricing.CalculateCost(service, map[string]any{"kit": "Large"}), 1e-9)
}

func TestCalculateCost_LegacyNameMatch(t *testing.T) {
	t.Parallel()

	service := parameterService(t, `[
		{"id": "kit", "type": "dropdown", "options": [{"id": "1", "name": "Large", "price": 30}]}
	]`)

	assert.InDelta(t, 30.0, pricing.CalculateCost(service, map[string]any{"kit": "Large"}, pricing.WithLegacyNameMatch()), 1e-9)
	assert.InDelta(t, 30.0, pricing.CalculateCost(service, map[string]any{"kit": "1"}, pricing.WithLegacyNameMatch()), 1e-9)
	assert.InDelta(t, 0.0, pricing.CalculateCost(service, map[string]any{"kit": "Small"}, pricing.WithLegacyNameMatch()), 1e-9)
}

func TestCalculateCost_ParameterLevelMultiplicity(t *testing.T) {
	t.Parallel()

	service := parameterService(t, `[
		{"id": "samples", "type": "text", "allowMultipleValues": true, "price": 5}
	]`)

	assert.InDelta(t, 15.0, pricing.CalculateCost(service, map[string]any{"samples": []any{"x", "y", "z"}}), 1e-9)
	assert.InDelta(t, 5.0, pricing.CalculateCost(service, map[string]any{"samples": "x"}), 1e-9)
	assert.InDelta(t, 0.0, pricing.CalculateCost(service, map[string]any{}), 1e-9)
}

func TestCalculateCost_MultiValueQuantityIsListLength(t *testing.T) {
	t.Parallel()

	service := parameterService(t, `[
		{"id": "samples", "type": "text", "allowMultipleValues": true, "price": 5}
	]`)

	tests := []struct {
		name     string
		value    any
		expected float64
	}{
		{name: "blank element", value: []any{"x", "", "z"}, expected: 15},
		{name: "nil element", value: []any{"x", nil, "z"}, expected: 15},
		{name: "empty list", value: []any{}, expected: 0},
		{name: "absent", value: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cost := pricing.CalculateCost(service, map[string]any{"samples": tt.value})
			assert.InDelta(t, tt.expected, cost, 1e-9)
		})
	}
}

func TestCalculateCost_BlankScalarIsAbsent(t *testing.T) {
	t.Parallel()

	service := parameterService(t, `[
		{"id": "notes", "type": "text", "price": 4}
	]`)

	assert.InDelta(t, 0.0, pricing.CalculateCost(service, map[string]any{"notes": "  "}), 1e-9)
	assert.InDelta(t, 4.0, pricing.CalculateCost(service, map[string]any{"notes": "rush"}), 1e-9)
}

func TestCalculateCost_ChoiceWithoutPricedOptionsFallsBackToParameterPrice(t *testing.T) {
	t.Parallel()

	service := parameterService(t, `[
		{"id": "kit", "type": "dropdown", "price": "8", "options": [{"id": "a"}, {"id": "b"}]}
	]`)

	assert.InDelta(t, 8.0, pricing.CalculateCost(service, map[string]any{"kit": "a"}), 1e-9)
}

func TestCalculateCost_MalformedDefinitionsContributeZero(t *testing.T) {
	t.Parallel()

	service := parameterService(t, `[
		"not an object",
		{"type": "text", "price": 100},
		{"id": {"nested": true}, "price": 100},
		{"id": "volume", "type": "numeric", "price": "abc"},
		{"id": "runs", "type": "numeric", "price": 2.5}
	]`)

	cost := pricing.CalculateCost(service, map[string]any{"volume": 3, "runs": 4})

	assert.InDelta(t, 2.5, cost, 1e-9)
}

func TestCalculateCost_SumsParameters(t *testing.T) {
	t.Parallel()

	service := parameterService(t, `[
		{"id": "kit", "type": "dropdown", "options": [{"id": "a", "price": 10}]},
		{"id": "samples", "type": "text", "allowMultipleValues": true, "price": 2},
		{"id": 3, "type": "checkbox", "price": 1}
	]`)

	cost := pricing.CalculateCost(service, []any{
		map[string]any{"id": "kit", "value": "a"},
		map[string]any{"id": "samples", "value": []any{"s1", "s2"}},
		map[string]any{"id": "3", "value": true},
	})

	assert.InDelta(t, 15.0, cost, 1e-9)
}

func TestCalculateCost_NilService(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, pricing.CalculateCost(nil, nil), 1e-9)
	assert.InDelta(t, 9.0, pricing.CalculateCost(nil, nil, pricing.WithFallbackCost(9)), 1e-9)
}

func TestToNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value    any
		expected float64
		ok       bool
	}{
		{value: 3, expected: 3, ok: true},
		{value: "2.25", expected: 2.25, ok: true},
		{value: json.Number("7"), expected: 7, ok: true},
		{value: "NaN", ok: false},
		{value: "", ok: false},
		{value: true, ok: false},
		{value: nil, ok: false},
	}

	for _, tt := range tests {
		got, ok := pricing.ToNumber(tt.value)
		assert.Equal(t, tt.ok, ok, "value %v", tt.value)
		assert.InDelta(t, tt.expected, got, 1e-9)
	}
}
