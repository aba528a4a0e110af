// Package pricing computes the cost of a service from its definition and the form data
// submitted for it. Evaluation never fails: anything that cannot be priced
// contributes zero.
package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/dukex/labflow/pkg/formdata"
	"github.com/dukex/labflow/pkg/models"
)

type config struct {
	fallback        float64
	hasFallback     bool
	legacyNameMatch bool
}

// Option configures CalculateCost.
type Option func(*config)

// WithFallbackCost sets the flat cost used when a SERVICE priced service has no
// parseable price.
func WithFallbackCost(cost float64) Option {
	return func(c *config) {
		c.fallback = cost
		c.hasFallback = true
	}
}

// WithLegacyNameMatch also matches submitted choice values against option names,
// for submissions stored before option ids were recorded.
func WithLegacyNameMatch() Option {
	return func(c *config) {
		c.legacyNameMatch = true
	}
}

// CalculateCost returns the cost of ordering service with the submitted form data.
func CalculateCost(service *models.Service, submitted any, opts ...Option) float64 {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	if service == nil {
		return cfg.flat(nil)
	}

	if service.EffectivePricingMode() == models.PricingModeService {
		return cfg.flat(service.Price)
	}

	multiValue := formdata.MultiValueIDs(service.Parameters)
	values := formdata.Normalize(submitted, multiValue).AsMap()

	var total float64

	for _, parameter := range service.Parameters {
		kind := parameter.Kind()
		if kind == models.ParameterKindUnknown {
			continue
		}

		submittedValues := valuesOf(values[parameter.ID])

		if kind.IsChoice() && hasPricedOption(parameter.Options) {
			total += cfg.optionCost(parameter.Options, submittedValues)

			continue
		}

		if price, ok := ToNumber(parameter.Price); ok {
			total += price * float64(len(submittedValues))
		}
	}

	return total
}

func (c *config) flat(price any) float64 {
	if value, ok := ToNumber(price); ok {
		return value
	}

	if c.hasFallback {
		return c.fallback
	}

	return 0
}

// valuesOf flattens a coerced value into the list of submitted values. Every element
// of a list counts; an absent or blank scalar counts as no value.
func valuesOf(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}

		return []any{v}
	default:
		return []any{v}
	}
}

func hasPricedOption(options []models.ParameterOption) bool {
	for _, option := range options {
		if _, ok := ToNumber(option.Price); ok {
			return true
		}
	}

	return false
}

func (c *config) optionCost(options []models.ParameterOption, values []any) float64 {
	var total float64

	for _, value := range values {
		option, ok := matchOption(options, valueKey(value), c.legacyNameMatch)
		if !ok {
			continue
		}

		if price, ok := ToNumber(option.Price); ok {
			total += price
		}
	}

	return total
}

// matchOption finds an option by id, then by name when byName is set.
func matchOption(options []models.ParameterOption, key string, byName bool) (models.ParameterOption, bool) {
	if key == "" {
		return models.ParameterOption{}, false
	}

	for _, option := range options {
		if option.ID == key {
			return option, true
		}
	}

	if !byName {
		return models.ParameterOption{}, false
	}

	for _, option := range options {
		if option.Name != "" && option.Name == key {
			return option, true
		}
	}

	return models.ParameterOption{}, false
}

func valueKey(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case map[string]any:
		if id, ok := v["id"]; ok {
			return valueKey(id)
		}
	}

	return ""
}

// ToNumber converts a loosely typed price or value to a finite float.
func ToNumber(value any) (float64, bool) {
	var f float64

	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}

		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}

		f = parsed
	case *float64:
		if v == nil {
			return 0, false
		}

		f = *v
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}
