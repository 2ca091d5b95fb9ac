package credit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultCatalog is used when no PLAN_CATALOG is configured
const DefaultCatalog = "basic:5000:5,standard:10000:10,premium:25000:30"

// Plan is a purchasable credit package. Price is in minor currency units.
type Plan struct {
	Name    string `json:"name"`
	Price   int64  `json:"price"`
	Credits int    `json:"credits"`
}

// Catalog maps plan names to packages. Names are case-insensitive.
type Catalog struct {
	plans map[string]Plan
}

// NewCatalog builds a catalog from plans
func NewCatalog(plans ...Plan) Catalog {
	c := Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		p.Name = normalizePlan(p.Name)
		c.plans[p.Name] = p
	}
	return c
}

// ParseCatalog parses "name:price:credits" entries separated by commas
func ParseCatalog(s string) (Catalog, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultCatalog
	}

	plans := make([]Plan, 0, 4)
	seen := make(map[string]struct{})
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return Catalog{}, fmt.Errorf("invalid plan entry %q: want name:price:credits", entry)
		}

		name := normalizePlan(parts[0])
		if name == "" {
			return Catalog{}, fmt.Errorf("invalid plan entry %q: empty name", entry)
		}
		if _, dup := seen[name]; dup {
			return Catalog{}, fmt.Errorf("duplicate plan %q", name)
		}

		price, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil || price <= 0 {
			return Catalog{}, fmt.Errorf("invalid price for plan %q", name)
		}
		credits, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || credits <= 0 {
			return Catalog{}, fmt.Errorf("invalid credits for plan %q", name)
		}

		seen[name] = struct{}{}
		plans = append(plans, Plan{Name: name, Price: price, Credits: credits})
	}

	if len(plans) == 0 {
		return Catalog{}, fmt.Errorf("plan catalog is empty")
	}
	return NewCatalog(plans...), nil
}

// Lookup returns the plan by name
func (c Catalog) Lookup(name string) (Plan, bool) {
	p, ok := c.plans[normalizePlan(name)]
	return p, ok
}

// Plans returns all plans ordered by price
func (c Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price == out[j].Price {
			return out[i].Name < out[j].Name
		}
		return out[i].Price < out[j].Price
	})
	return out
}

func normalizePlan(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
