package constants

import (
	"strings"
)

// Category is one label from the fixed auto-parts taxonomy. Extraction and
// reconciliation may only ever select from this closed set; free-form labels
// are dropped, not errored.
type Category string

const (
	Brakes             Category = "Brakes"
	SuspensionSteering Category = "Suspension & Steering"
	EngineComponents   Category = "Engine Components"
	IgnitionElectrical Category = "Ignition & Electrical"
	Filters            Category = "Filters"
	FluidsChemicals    Category = "Fluids & Chemicals"
	HeatingCooling     Category = "Heating & Cooling"
	Exhaust            Category = "Exhaust"
	FuelSystem         Category = "Fuel System"
	Drivetrain         Category = "Drivetrain"
	BodyLighting       Category = "Body & Lighting"
	TiresWheels        Category = "Tires & Wheels"
	ToolsShopSupplies  Category = "Tools & Shop Supplies"
	Accessories        Category = "Accessories"
)

var allCategories = []Category{
	Brakes,
	SuspensionSteering,
	EngineComponents,
	IgnitionElectrical,
	Filters,
	FluidsChemicals,
	HeatingCooling,
	Exhaust,
	FuelSystem,
	Drivetrain,
	BodyLighting,
	TiresWheels,
	ToolsShopSupplies,
	Accessories,
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// IsCategory reports whether input is a taxonomy member (case-insensitive,
// whitespace-trimmed) and returns the canonical label.
func IsCategory(input string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}
	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}
	return "", false
}

// FilterCategories keeps only taxonomy members, canonicalized and deduplicated,
// preserving first-seen order.
func FilterCategories(input []string) []string {
	seen := make(map[Category]struct{}, len(input))
	var result []string
	for _, raw := range input {
		cat, ok := IsCategory(raw)
		if !ok {
			continue
		}
		if _, dup := seen[cat]; dup {
			continue
		}
		seen[cat] = struct{}{}
		result = append(result, string(cat))
	}
	return result
}
