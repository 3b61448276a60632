package models

import (
	"encoding/json"
	"fmt"
)

// FilterFieldType selects which minion facet a filter inspects.
type FilterFieldType string

// Filter field types.
const (
	FilterFieldObject  FilterFieldType = "object"
	FilterFieldGrain   FilterFieldType = "grain"
	FilterFieldPackage FilterFieldType = "package"
)

// FilterOperand is the comparison a filter applies.
type FilterOperand string

// Filter operands.
const (
	FilterOperandContains         FilterOperand = "c"
	FilterOperandNotContains      FilterOperand = "nc"
	FilterOperandEquals           FilterOperand = "e"
	FilterOperandNotEquals        FilterOperand = "ne"
	FilterOperandStartsWith       FilterOperand = "sw"
	FilterOperandEndsWith         FilterOperand = "ew"
	FilterOperandGreaterThanEqual FilterOperand = "gte"
	FilterOperandLessThanEqual    FilterOperand = "lte"
)

// Filter is one predicate of a minion search expression.
type Filter struct {
	FieldType FilterFieldType `json:"fieldType"`
	Field     string          `json:"field"`
	Operand   FilterOperand   `json:"operand"`
	Value     string          `json:"value"`
}

// ParseFilters decodes the JSON filter list used by search endpoints and
// presets. An empty document yields an empty list.
func ParseFilters(doc string) ([]Filter, error) {
	if doc == "" {
		return nil, nil
	}
	var filters []Filter
	if err := json.Unmarshal([]byte(doc), &filters); err != nil {
		return nil, fmt.Errorf("parsing filters: %w", err)
	}
	return filters, nil
}
