package checkout_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/cart/carttest"
	"github.com/platinummonkey/tenantcart/pkg/checkout"
	"github.com/platinummonkey/tenantcart/pkg/swaps"
)

// memTx runs submissions directly against the in-memory store.
type memTx struct {
	store *carttest.Store
	swaps *memSwaps

	err       error
	panicWith any
}

func newMemTx(store *carttest.Store) *memTx {
	return &memTx{store: store, swaps: &memSwaps{}}
}

func (m *memTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores checkout.Stores) error) error {
	stores := checkout.Stores{
		Customers:   m.store,
		Memberships: m.store,
		Payments:    m.store,
		Sites:       m.store,
		Swaps:       m.swaps,
	}
	if m.err != nil || m.panicWith != nil {
		stores.Swaps = failingSwaps{err: m.err, panicWith: m.panicWith}
		stores.Payments = failingPayments{PaymentRepository: m.store, err: m.err, panicWith: m.panicWith}
	}
	return fn(ctx, stores)
}

type failingPayments struct {
	billing.PaymentRepository
	err       error
	panicWith any
}

func (f failingPayments) CreatePayment(ctx context.Context, p *billing.Payment) error {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.err
}

type failingSwaps struct {
	swaps.Store
	err       error
	panicWith any
}

func (f failingSwaps) ScheduleSwap(ctx context.Context, s *swaps.Swap) error {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.err
}

type memSwaps struct {
	mu     sync.Mutex
	swaps  []*swaps.Swap
	nextID int64
}

func (m *memSwaps) ScheduleSwap(ctx context.Context, s *swaps.Swap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.swaps {
		if existing.MembershipID == s.MembershipID && existing.Status == swaps.StatusPending {
			existing.Status = swaps.StatusCancelled
		}
	}
	m.nextID++
	s.ID = m.nextID
	s.Status = swaps.StatusPending
	m.swaps = append(m.swaps, s)
	return nil
}

func (m *memSwaps) ListDue(ctx context.Context, now time.Time, limit int) ([]*swaps.Swap, error) {
	return nil, nil
}

func (m *memSwaps) MarkApplied(ctx context.Context, id int64) error { return nil }

func (m *memSwaps) MarkFailed(ctx context.Context, id int64, reason string) error { return nil }

func (m *memSwaps) all() []*swaps.Swap {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*swaps.Swap(nil), m.swaps...)
}

// cardGateway records the orders it is asked to charge.
type cardGateway struct {
	mu     sync.Mutex
	orders []*checkout.Order
	err    error
}

func (g *cardGateway) ID() string { return "card" }

func (g *cardGateway) ProcessCheckout(ctx context.Context, order *checkout.Order) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, order)
	if g.err != nil {
		return nil, g.err
	}
	return map[string]any{"redirect_url": "https://pay.example/checkout"}, nil
}

func (g *cardGateway) TriggerPaymentProcessed(ctx context.Context, payment *billing.Payment, membership *billing.Membership) error {
	return nil
}

// memDrafts signals every deleted session on deleted.
type memDrafts struct {
	mu      sync.Mutex
	drafts  map[string]checkout.OrderRequest
	deleted chan string
}

func newMemDrafts() *memDrafts {
	return &memDrafts{drafts: make(map[string]checkout.OrderRequest), deleted: make(chan string, 4)}
}

func (d *memDrafts) Save(ctx context.Context, sessionID string, req checkout.OrderRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	req.SessionID = sessionID
	d.drafts[sessionID] = req
	return nil
}

func (d *memDrafts) Load(ctx context.Context, sessionID string) (*checkout.OrderRequest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	req, ok := d.drafts[sessionID]
	if !ok {
		return nil, checkout.ErrDraftNotFound
	}
	return &req, nil
}

func (d *memDrafts) Delete(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	delete(d.drafts, sessionID)
	d.mu.Unlock()
	d.deleted <- sessionID
	return nil
}

var errGatewayDown = errors.New("card network unavailable")
