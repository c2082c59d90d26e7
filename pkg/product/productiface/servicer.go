//

package productiface

import (
	"github.com/Optum/tally/pkg/tagset"
)

// Servicer makes working with the Product Service struct easier
type Servicer interface {
	// ByRawName returns the canonical product for a raw billing product name
	ByRawName(raw string) *tagset.Product
	// ByCanonicalName returns the product for a canonical name
	ByCanonicalName(name string) (*tagset.Product, error)
	// InstanceVariant returns the instance-level product for a base compute product
	InstanceVariant(p *tagset.Product) *tagset.Product
}
