package mxapi

import (
	"fmt"
	"slices"
	"strings"
)

// Catalog is an immutable set of endpoints with unique names and unique
// method and route pairs.
type Catalog struct {
	endpoints []Descriptor
	byName    map[string]Descriptor
}

// Route is one row of a dispatcher's route table.
type Route struct {
	Name                   string `json:"name"`
	Method                 Method `json:"method"`
	Path                   string `json:"path"`
	RequiresAuthentication bool   `json:"requires_authentication"`
	RateLimited            bool   `json:"rate_limited"`
}

// NewCatalog builds a catalog. Endpoints keep their given order.
func NewCatalog(endpoints ...Descriptor) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Descriptor, len(endpoints))}
	routes := make(map[string]string, len(endpoints))
	for _, e := range endpoints {
		if _, dup := c.byName[e.Name()]; dup {
			return nil, fmt.Errorf("mxapi: duplicate endpoint name %q", e.Name())
		}
		key := string(e.Method()) + " " + routeShape(e.Template())
		if prev, dup := routes[key]; dup {
			return nil, fmt.Errorf("mxapi: endpoints %q and %q share route %s %s", prev, e.Name(), e.Method(), e.RouterPath())
		}
		routes[key] = e.Name()
		c.byName[e.Name()] = e
		c.endpoints = append(c.endpoints, e)
	}
	return c, nil
}

// MustCatalog is like NewCatalog but panics on error.
func MustCatalog(endpoints ...Descriptor) *Catalog {
	c, err := NewCatalog(endpoints...)
	if err != nil {
		panic(err)
	}
	return c
}

// routeShape erases placeholder names, so "/rooms/:a" and "/rooms/:b"
// collide as they would in any router.
func routeShape(t *Template) string {
	var b strings.Builder
	for _, seg := range t.segments {
		b.WriteByte('/')
		if seg.isParam() {
			b.WriteByte(':')
			continue
		}
		b.WriteString(seg.literal)
	}
	return b.String()
}

// Lookup returns the endpoint with the given name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// All returns the endpoints in declaration order.
func (c *Catalog) All() []Descriptor {
	return slices.Clone(c.endpoints)
}

// Names returns the endpoint names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.endpoints))
	for _, e := range c.endpoints {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names
}

// Routes returns the route table in declaration order.
func (c *Catalog) Routes() []Route {
	routes := make([]Route, 0, len(c.endpoints))
	for _, e := range c.endpoints {
		routes = append(routes, Route{
			Name:                   e.Name(),
			Method:                 e.Method(),
			Path:                   e.RouterPath(),
			RequiresAuthentication: e.RequiresAuthentication(),
			RateLimited:            e.RateLimited(),
		})
	}
	return routes
}

// Match finds the endpoint serving method and an escaped request path,
// returning the captured path values. When several templates match, the one
// with the fewest placeholders wins. If e is nil, allowed lists the methods
// the path does match under; an empty allowed means no route at all.
func (c *Catalog) Match(method Method, path string) (e Descriptor, values map[string]string, allowed []Method) {
	var best Descriptor
	var bestValues map[string]string
	bestParams := -1
	for _, cand := range c.endpoints {
		v, ok := cand.Template().Match(path)
		if !ok {
			continue
		}
		if cand.Method() != method {
			if !slices.Contains(allowed, cand.Method()) {
				allowed = append(allowed, cand.Method())
			}
			continue
		}
		n := len(cand.Template().params)
		if best == nil || n < bestParams {
			best, bestValues, bestParams = cand, v, n
		}
	}
	if best != nil {
		return best, bestValues, nil
	}
	return nil, nil, allowed
}
