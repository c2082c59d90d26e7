package tagset

import "strings"

// Account identifies a billing account
type Account struct {
	ID   string
	Name string
}

// Product is a canonical product name. Raw billing names are mapped to
// canonical products by the product service before reaching this package.
type Product struct {
	Name string
}

// ResourceGroup labels a resource-level rollup bucket within a product
type ResourceGroup struct {
	Name string
}

// UsageType is an interned (name, unit) pair
type UsageType struct {
	Name string
	Unit string
}

// InferUnit derives the unit for a usage type. Reservation operations
// always meter in hours; otherwise the unit comes from name keywords.
func InferUnit(name string, op *Operation) string {
	if op != nil && !op.IsOndemand() {
		return "hours"
	}
	switch {
	case strings.Contains(name, "ByteHrs"):
		return "GB-hours"
	case strings.Contains(name, "Bytes"):
		return "GB"
	case strings.Contains(name, "Requests"):
		return "requests"
	case strings.Contains(name, "BoxUsage") || strings.Contains(name, "Hrs"):
		return "hours"
	}
	return ""
}
