package minions

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// Search loads the materialized minions in the given order, applies the
// filters, and pages the result. Filtering happens after the load because
// grain and package predicates reach inside JSON blobs the store cannot
// index.
func Search(ctx context.Context, store storage.MinionStore, filters []models.Filter, sort storage.MinionSort, limit, offset int) ([]models.Minion, error) {
	minions, err := store.ListMinions(ctx, sort, 0, 0)
	if err != nil {
		return nil, errors.NewStorageError("listing minions", err)
	}
	matched := Filtered(minions, filters)

	if offset > 0 {
		if offset >= len(matched) {
			return []models.Minion{}, nil
		}
		matched = matched[offset:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// Filtered returns the minions matching every filter. An empty filter
// list matches everything.
func Filtered(minions []models.Minion, filters []models.Filter) []models.Minion {
	if len(filters) == 0 {
		return minions
	}
	matched := []models.Minion{}
	for _, minion := range minions {
		if Matches(minion, filters) {
			matched = append(matched, minion)
		}
	}
	return matched
}

// Matches reports whether the minion satisfies every filter.
func Matches(minion models.Minion, filters []models.Filter) bool {
	var doc string
	for _, filter := range filters {
		if !matchesOne(minion, filter, &doc) {
			return false
		}
	}
	return true
}

// matchesOne evaluates a single predicate. doc caches the minion's JSON
// rendering across object filters.
func matchesOne(minion models.Minion, filter models.Filter, doc *string) bool {
	switch filter.FieldType {
	case models.FilterFieldObject:
		if *doc == "" {
			raw, err := json.Marshal(minion)
			if err != nil {
				return false
			}
			*doc = string(raw)
		}
		return compare(gjson.Get(*doc, escapePath(filter.Field)).String(), filter.Value, filter.Operand)

	case models.FilterFieldGrain:
		if minion.Grains == nil {
			return compare("", filter.Value, filter.Operand)
		}
		result := gjson.Get(*minion.Grains, filter.Field)
		// List grains match if any element does.
		if result.IsArray() {
			matched := false
			result.ForEach(func(_, value gjson.Result) bool {
				if compare(value.String(), filter.Value, filter.Operand) {
					matched = true
					return false
				}
				return true
			})
			return matched
		}
		return compare(result.String(), filter.Value, filter.Operand)

	case models.FilterFieldPackage:
		version := ""
		if minion.Pkgs != nil {
			// Package names contain dots; look up the literal key.
			version = gjson.Get(*minion.Pkgs, escapePath(filter.Field)).String()
		}
		return compare(version, filter.Value, filter.Operand)
	}
	return false
}

// compare applies an operand to a target value. Ordering operands compare
// numerically when both sides parse as numbers, else lexically.
func compare(target, value string, operand models.FilterOperand) bool {
	switch operand {
	case models.FilterOperandContains:
		return strings.Contains(target, value)
	case models.FilterOperandNotContains:
		return !strings.Contains(target, value)
	case models.FilterOperandEquals:
		return target == value
	case models.FilterOperandNotEquals:
		return target != value
	case models.FilterOperandStartsWith:
		return strings.HasPrefix(target, value)
	case models.FilterOperandEndsWith:
		return strings.HasSuffix(target, value)
	case models.FilterOperandGreaterThanEqual:
		if tf, vf, ok := parseBoth(target, value); ok {
			return tf >= vf
		}
		return target >= value
	case models.FilterOperandLessThanEqual:
		if tf, vf, ok := parseBoth(target, value); ok {
			return tf <= vf
		}
		return target <= value
	}
	return false
}

func parseBoth(a, b string) (float64, float64, bool) {
	af, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return 0, 0, false
	}
	bf, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return 0, 0, false
	}
	return af, bf, true
}

// escapePath neutralizes gjson path syntax so a field name is looked up
// as one literal key.
func escapePath(field string) string {
	return strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`).Replace(field)
}
