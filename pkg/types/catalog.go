package types

import "sort"

// Catalog holds every product of one refresh keyed by identifier. It keeps
// insertion order so that listings are deterministic.
type Catalog struct {
	order []string
	byID  map[string]*Product
	types []ProductType
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byID: make(map[string]*Product),
	}
}

// Add registers the product unless its identifier is already known. It
// returns false when the product was already present.
func (c *Catalog) Add(p *Product) bool {
	if _, ok := c.byID[p.Identifier]; ok {
		return false
	}
	c.insert(p)
	return true
}

// Set registers the product, replacing any product with the same identifier
// in place.
func (c *Catalog) Set(p *Product) {
	if _, ok := c.byID[p.Identifier]; ok {
		c.byID[p.Identifier] = p
		return
	}
	c.insert(p)
}

func (c *Catalog) insert(p *Product) {
	c.order = append(c.order, p.Identifier)
	c.byID[p.Identifier] = p
	if !p.Extra {
		c.addType(p.Type)
	}
}

func (c *Catalog) addType(t ProductType) {
	for _, existing := range c.types {
		if existing == t {
			return
		}
	}
	c.types = append(c.types, t)
}

// Get returns the product with the given identifier.
func (c *Catalog) Get(identifier string) (*Product, bool) {
	p, ok := c.byID[identifier]
	return p, ok
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	return len(c.order)
}

// List returns the products in insertion order.
func (c *Catalog) List() []*Product {
	out := make([]*Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Types returns the distinct types of the non-synthetic products in the
// order they were discovered.
func (c *Catalog) Types() []ProductType {
	return append([]ProductType(nil), c.types...)
}

// Plans returns the sorted distinct plan identifiers.
func (c *Catalog) Plans() []string {
	return PlanIdentifiers(c.List())
}

// PlanIdentifiers returns the sorted distinct plan identifiers of products.
func PlanIdentifiers(products []*Product) []string {
	seen := make(map[string]struct{}, len(products))
	var out []string
	for _, p := range products {
		if _, ok := seen[p.PlanIdentifier]; ok {
			continue
		}
		seen[p.PlanIdentifier] = struct{}{}
		out = append(out, p.PlanIdentifier)
	}
	sort.Strings(out)
	return out
}
