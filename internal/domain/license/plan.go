package license

import (
	"fmt"
	"time"
)

// Seat tiers that can be sold.
var allowedSeatCounts = map[int]bool{1: true, 2: true, 4: true, 10: true}

// basicUpdatesWindow is how long a lifetime_basic purchase receives free updates.
const basicUpdatesWindow = 365 * 24 * time.Hour

type Plan struct {
	Type       LicenseType
	MaxDevices int
}

func (p Plan) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("unknown license type %q", p.Type)
	}
	if !allowedSeatCounts[p.MaxDevices] {
		return fmt.Errorf("max devices %d is not a sold tier", p.MaxDevices)
	}
	return nil
}

// UpdatesEndDate returns nil when the plan includes unlimited updates.
func (p Plan) UpdatesEndDate(purchasedAt time.Time) *time.Time {
	if p.Type != TypeLifetimeBasic {
		return nil
	}
	end := purchasedAt.Add(basicUpdatesWindow)
	return &end
}

// Catalog resolves payment provider product ids to plans.
type Catalog struct {
	plans map[string]Plan
}

func NewCatalog(plans map[string]Plan) (*Catalog, error) {
	for productID, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("product %s: %w", productID, err)
		}
	}
	return &Catalog{plans: plans}, nil
}

func (c *Catalog) Resolve(productID string) (Plan, bool) {
	p, ok := c.plans[productID]
	return p, ok
}
