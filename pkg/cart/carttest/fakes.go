// Package carttest provides in-memory collaborators for cart and checkout
// tests.
package carttest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/cart"
	"github.com/platinummonkey/tenantcart/pkg/catalog"
	"github.com/platinummonkey/tenantcart/pkg/sites"
	"github.com/platinummonkey/tenantcart/pkg/storage"
)

// Store keeps every billing, catalog and site record in memory
type Store struct {
	mu sync.Mutex

	Products    map[int64]*catalog.Product
	Customers   map[int64]*billing.Customer
	Memberships map[int64]*billing.Membership
	Payments    map[int64]*billing.Payment
	Discounts   map[string]*billing.DiscountCode
	Sites       map[int64][]*sites.Site
	Overlimits  map[int64][]sites.Overlimit

	// FailPendingList makes ListPendingPayments return an error
	FailPendingList bool

	nextID int64
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{
		Products:    make(map[int64]*catalog.Product),
		Customers:   make(map[int64]*billing.Customer),
		Memberships: make(map[int64]*billing.Membership),
		Payments:    make(map[int64]*billing.Payment),
		Discounts:   make(map[string]*billing.DiscountCode),
		Sites:       make(map[int64][]*sites.Site),
		Overlimits:  make(map[int64][]sites.Overlimit),
		nextID:      1000,
	}
}

// Deps wires the store into cart dependencies with a fixed clock
func (s *Store) Deps(now time.Time) cart.Deps {
	return cart.Deps{
		Products:     s,
		Customers:    s,
		Memberships:  s,
		Payments:     s,
		Discounts:    s,
		Sites:        s,
		Entitlements: s,
		Settings:     cart.DefaultSettings(),
		Now:          func() time.Time { return now },
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddProduct stores a product
func (s *Store) AddProduct(p *catalog.Product) *catalog.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Products[p.ID] = p
	return p
}

// AddCustomer stores a customer
func (s *Store) AddCustomer(c *billing.Customer) *billing.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Customers[c.ID] = c
	return c
}

// AddMembership stores a membership
func (s *Store) AddMembership(m *billing.Membership) *billing.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Memberships[m.ID] = m
	return m
}

// AddPayment stores a payment
func (s *Store) AddPayment(p *billing.Payment) *billing.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Payments[p.ID] = p
	return p
}

// AddDiscount stores a discount code
func (s *Store) AddDiscount(d *billing.DiscountCode) *billing.DiscountCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Discounts[d.Code] = d
	return d
}

// AddSite attaches a site to its membership
func (s *Store) AddSite(site *sites.Site) *sites.Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sites[site.MembershipID] = append(s.Sites[site.MembershipID], site)
	return site
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetProductBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.Products {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*billing.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %d: %w", id, storage.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c *billing.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	cp := *c
	s.Customers[c.ID] = &cp
	return nil
}

func (s *Store) UpdateCustomer(ctx context.Context, c *billing.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Customers[c.ID]; !ok {
		return fmt.Errorf("customer %d: %w", c.ID, storage.ErrNotFound)
	}
	cp := *c
	s.Customers[c.ID] = &cp
	return nil
}

func (s *Store) GetMembership(ctx context.Context, id int64) (*billing.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Memberships[id]
	if !ok {
		return nil, fmt.Errorf("membership %d: %w", id, storage.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *Store) CreateMembership(ctx context.Context, m *billing.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id()
	cp := *m
	s.Memberships[m.ID] = &cp
	return nil
}

func (s *Store) UpdateMembership(ctx context.Context, m *billing.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Memberships[m.ID]; !ok {
		return fmt.Errorf("membership %d: %w", m.ID, storage.ErrNotFound)
	}
	cp := *m
	s.Memberships[m.ID] = &cp
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id int64) (*billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %d: %w", id, storage.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) CreatePayment(ctx context.Context, p *billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	cp := *p
	s.Payments[p.ID] = &cp
	return nil
}

func (s *Store) UpdatePayment(ctx context.Context, p *billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Payments[p.ID]; !ok {
		return fmt.Errorf("payment %d: %w", p.ID, storage.ErrNotFound)
	}
	cp := *p
	s.Payments[p.ID] = &cp
	return nil
}

func (s *Store) ListPendingPayments(ctx context.Context, customerID int64) ([]*billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPendingList {
		return nil, fmt.Errorf("failed to list pending payments: connection reset")
	}
	var out []*billing.Payment
	for _, p := range s.Payments {
		if p.CustomerID == customerID && p.Status == billing.PaymentStatusPending {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) GetLastPendingPayment(ctx context.Context, membershipID int64) (*billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *billing.Payment
	for _, p := range s.Payments {
		if p.MembershipID == membershipID && p.Status == billing.PaymentStatusPending && (last == nil || p.ID > last.ID) {
			last = p
		}
	}
	if last == nil {
		return nil, fmt.Errorf("pending payment for membership %d: %w", membershipID, storage.ErrNotFound)
	}
	cp := *last
	return &cp, nil
}

func (s *Store) CancelPayment(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Payments[id]
	if !ok || p.Status != billing.PaymentStatusPending {
		return fmt.Errorf("payment %d: %w", id, storage.ErrNotFound)
	}
	p.Status = billing.PaymentStatusCancelled
	return nil
}

func (s *Store) GetDiscountCodeByCode(ctx context.Context, code string) (*billing.DiscountCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.Discounts[code]
	if !ok {
		return nil, fmt.Errorf("discount code %q: %w", code, storage.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (s *Store) GetSites(ctx context.Context, membershipID int64) ([]*sites.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*sites.Site(nil), s.Sites[membershipID]...), nil
}

func (s *Store) CreatePendingSite(ctx context.Context, site *sites.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site.ID = s.id()
	site.Status = sites.StatusPending
	s.Sites[site.MembershipID] = append(s.Sites[site.MembershipID], site)
	return nil
}

// CheckAllPostTypes returns the post overages registered for the site
func (s *Store) CheckAllPostTypes(ctx context.Context, site *sites.Site, limits catalog.Limits) ([]sites.Overlimit, error) {
	return s.overlimits(site.ID, true), nil
}

// CheckAllDomains returns the domain overages registered for the site
func (s *Store) CheckAllDomains(ctx context.Context, siteID int64, limits catalog.Limits) ([]sites.Overlimit, error) {
	return s.overlimits(siteID, false), nil
}

func (s *Store) overlimits(siteID int64, posts bool) []sites.Overlimit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sites.Overlimit
	for _, o := range s.Overlimits[siteID] {
		if o.IsPostType() == posts {
			out = append(out, o)
		}
	}
	return out
}

// Money parses a decimal literal
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Plan returns an active recurring plan
func Plan(id int64, slug, amount string, duration int, unit billing.DurationUnit) *catalog.Product {
	return &catalog.Product{
		ID:           id,
		Slug:         slug,
		Name:         slug,
		Kind:         catalog.KindPlan,
		Amount:       Money(amount),
		Duration:     duration,
		DurationUnit: unit,
		Recurring:    true,
		Active:       true,
	}
}

// Addon returns an active recurring addon
func Addon(id int64, slug, amount string, duration int, unit billing.DurationUnit) *catalog.Product {
	p := Plan(id, slug, amount, duration, unit)
	p.Kind = catalog.KindAddon
	return p
}

// ActiveMembership returns an active recurring membership on a plan that
// expires in daysLeft days
func ActiveMembership(id, customerID int64, plan *catalog.Product, now time.Time, daysLeft int) *billing.Membership {
	cycle := billing.DaysInCycle(plan.Duration, plan.DurationUnit)
	created := now.AddDate(0, 0, daysLeft-cycle)
	expires := now.AddDate(0, 0, daysLeft).Add(time.Hour)
	return &billing.Membership{
		ID:             id,
		CustomerID:     customerID,
		PlanID:         plan.ID,
		Currency:       "USD",
		Amount:         plan.Amount,
		InitialAmount:  plan.Amount,
		Duration:       plan.Duration,
		DurationUnit:   plan.DurationUnit,
		BillingCycles:  plan.BillingCycles,
		TimesBilled:    1,
		Recurring:      plan.Recurring,
		AutoRenew:      true,
		Status:         billing.MembershipStatusActive,
		DateCreated:    created,
		DateExpiration: &expires,
	}
}
