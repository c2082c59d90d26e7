package tagset

import (
	"strings"
	"sync"
)

// TagGroup is the canonical cost/usage coordinate. Instances are interned
// through a Registry: structurally equal tuples always resolve to the same
// pointer, so a *TagGroup is usable directly as a map key with identity
// semantics. Zone and ResourceGroup are optional and may be nil.
type TagGroup struct {
	Account       *Account
	Region        *Region
	Zone          *Zone
	Product       *Product
	Operation     *Operation
	UsageType     *UsageType
	ResourceGroup *ResourceGroup
}

// tagGroupKey is the structural identity of a TagGroup. Components are
// themselves interned so pointer equality on them is structural equality.
type tagGroupKey struct {
	account       *Account
	region        *Region
	zone          *Zone
	product       *Product
	operation     *Operation
	usageType     *UsageType
	resourceGroup *ResourceGroup
}

// Registry interns every dimension value type and the TagGroup tuples built
// from them. One Registry is shared process-wide; get-or-create is atomic so
// concurrent identical requests always observe a single instance.
type Registry struct {
	mu             sync.Mutex
	regions        map[string]*Region
	regionsByShort map[string]*Region
	zones          map[string]*Zone
	accounts       map[string]*Account
	products       map[string]*Product
	operations     map[string]*Operation
	usageTypes     map[string]*UsageType
	resourceGroups map[string]*ResourceGroup
	tagGroups      map[tagGroupKey]*TagGroup
}

// NewRegistry constructs a Registry preloaded with the closed region and
// operation sets.
func NewRegistry() *Registry {
	r := &Registry{
		regions:        make(map[string]*Region),
		regionsByShort: make(map[string]*Region),
		zones:          make(map[string]*Zone),
		accounts:       make(map[string]*Account),
		products:       make(map[string]*Product),
		operations:     make(map[string]*Operation),
		usageTypes:     make(map[string]*UsageType),
		resourceGroups: make(map[string]*ResourceGroup),
		tagGroups:      make(map[tagGroupKey]*TagGroup),
	}
	for _, region := range regionTable {
		r.regions[region.Name] = region
		r.regionsByShort[region.ShortName] = region
	}
	for _, op := range allOperations {
		r.operations[op.Name] = op
	}
	return r
}

// DefaultRegion is the region assumed when a usage type carries no
// recognized short-code prefix.
func (r *Registry) DefaultRegion() *Region {
	return r.regions["us-east-1"]
}

// Region returns the region with the given canonical name, or nil
func (r *Registry) Region(name string) *Region {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.regions[name]
}

// RegionByShortName returns the region for a usage-type prefix, or nil
func (r *Registry) RegionByShortName(short string) *Region {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.regionsByShort[short]
}

// Zone interns an availability zone under its region
func (r *Registry) Zone(region *Region, name string) *Zone {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if z, ok := r.zones[name]; ok {
		return z
	}
	z := &Zone{Name: name, Region: region}
	r.zones[name] = z
	return z
}

// ZoneRegion returns the region a zone name belongs to, inferred from the
// zone name prefix when the zone has not been seen yet.
func (r *Registry) ZoneRegion(name string) *Region {
	r.mu.Lock()
	defer r.mu.Unlock()
	if z, ok := r.zones[name]; ok {
		return z.Region
	}
	for _, region := range r.regions {
		if strings.HasPrefix(name, region.Name) {
			return region
		}
	}
	return nil
}

// Account interns an account by id
func (r *Registry) Account(id string, name string) *Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		return a
	}
	a := &Account{ID: id, Name: name}
	r.accounts[id] = a
	return a
}

// Product interns a canonical product name
func (r *Registry) Product(name string) *Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[name]; ok {
		return p
	}
	p := &Product{Name: name}
	r.products[name] = p
	return p
}

// Operation returns a member of the closed operation set by name, or nil
func (r *Registry) Operation(name string) *Operation {
	return r.operations[name]
}

// UsageType interns a (name, unit) pair
func (r *Registry) UsageType(name string, unit string) *UsageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.usageTypes[name]; ok {
		return u
	}
	u := &UsageType{Name: name, Unit: unit}
	r.usageTypes[name] = u
	return u
}

// ResourceGroup interns a resource group label
func (r *Registry) ResourceGroup(name string) *ResourceGroup {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.resourceGroups[name]; ok {
		return g
	}
	g := &ResourceGroup{Name: name}
	r.resourceGroups[name] = g
	return g
}

// GetTagGroup returns the canonical TagGroup for the tuple, creating it if
// absent. Both lookups for one tuple return the identical pointer.
func (r *Registry) GetTagGroup(account *Account, region *Region, zone *Zone,
	product *Product, operation *Operation, usageType *UsageType,
	resourceGroup *ResourceGroup) *TagGroup {

	key := tagGroupKey{
		account:       account,
		region:        region,
		zone:          zone,
		product:       product,
		operation:     operation,
		usageType:     usageType,
		resourceGroup: resourceGroup,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tg, ok := r.tagGroups[key]; ok {
		return tg
	}
	tg := &TagGroup{
		Account:       account,
		Region:        region,
		Zone:          zone,
		Product:       product,
		Operation:     operation,
		UsageType:     usageType,
		ResourceGroup: resourceGroup,
	}
	r.tagGroups[key] = tg
	return tg
}

// WithOperation returns the canonical TagGroup equal to tg except for the
// operation field.
func (r *Registry) WithOperation(tg *TagGroup, op *Operation) *TagGroup {
	return r.GetTagGroup(tg.Account, tg.Region, tg.Zone, tg.Product, op, tg.UsageType, tg.ResourceGroup)
}

// Compare orders TagGroups lexicographically over the tuple. The optional
// fields (Zone, ResourceGroup) sort present before absent; this is the
// reverse of how the rest of the system treats missing values, and is
// preserved because persisted files and consumers depend on the order.
func (a *TagGroup) Compare(b *TagGroup) int {
	if c := strings.Compare(a.Account.ID, b.Account.ID); c != 0 {
		return c
	}
	if c := strings.Compare(a.Region.Name, b.Region.Name); c != 0 {
		return c
	}
	if c := compareOptional(zoneName(a.Zone), zoneName(b.Zone)); c != 0 {
		return c
	}
	if c := strings.Compare(a.Product.Name, b.Product.Name); c != 0 {
		return c
	}
	if a.Operation.seq != b.Operation.seq {
		if a.Operation.seq < b.Operation.seq {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a.UsageType.Name, b.UsageType.Name); c != 0 {
		return c
	}
	return compareOptional(groupName(a.ResourceGroup), groupName(b.ResourceGroup))
}

// compareOptional sorts non-empty values before empty ones, then by value
func compareOptional(a, b string) int {
	if a == "" && b == "" {
		return 0
	}
	if a == "" {
		return 1
	}
	if b == "" {
		return -1
	}
	return strings.Compare(a, b)
}

func zoneName(z *Zone) string {
	if z == nil {
		return ""
	}
	return z.Name
}

func groupName(g *ResourceGroup) string {
	if g == nil {
		return ""
	}
	return g.Name
}
