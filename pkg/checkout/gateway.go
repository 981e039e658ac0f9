package checkout

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/cart"
	"github.com/platinummonkey/tenantcart/pkg/sites"
	"github.com/platinummonkey/tenantcart/pkg/swaps"
)

// Gateway identifiers built into the engine
const (
	FreeGatewayID   = "free"
	ManualGatewayID = "manual"
)

// Order is everything a gateway needs to charge a committed checkout
type Order struct {
	Cart       *cart.Cart
	Customer   *billing.Customer
	Membership *billing.Membership
	Payment    *billing.Payment
	Site       *sites.Site
	Swap       *swaps.Swap
}

// Gateway collects payments for orders
type Gateway interface {
	ID() string
	// ProcessCheckout starts collecting the order's payment. The returned
	// data is passed back to the client, for example a redirect URL.
	ProcessCheckout(ctx context.Context, order *Order) (map[string]any, error)
	// TriggerPaymentProcessed notifies the gateway that a payment was
	// settled without it.
	TriggerPaymentProcessed(ctx context.Context, payment *billing.Payment, membership *billing.Membership) error
}

// Registry holds the available gateways by ID
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

// NewRegistry creates a registry that always contains the free gateway
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: map[string]Gateway{FreeGatewayID: FreeGateway{}}}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

// Register adds or replaces a gateway
func (r *Registry) Register(g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.ID()] = g
}

// Get returns the gateway registered under id
func (r *Registry) Get(id string) (Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[id]
	return g, ok
}

// IDs lists the registered gateway IDs in order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.gateways))
	for id := range r.gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FreeGateway settles orders that have nothing to charge
type FreeGateway struct{}

func (FreeGateway) ID() string { return FreeGatewayID }

func (FreeGateway) ProcessCheckout(ctx context.Context, order *Order) (map[string]any, error) {
	return nil, nil
}

func (FreeGateway) TriggerPaymentProcessed(ctx context.Context, payment *billing.Payment, membership *billing.Membership) error {
	return nil
}

// ManualGateway leaves the payment pending until it is confirmed out of band,
// for example by bank transfer.
type ManualGateway struct {
	Instructions string
}

func (g ManualGateway) ID() string { return ManualGatewayID }

func (g ManualGateway) ProcessCheckout(ctx context.Context, order *Order) (map[string]any, error) {
	if order.Payment == nil {
		return nil, fmt.Errorf("manual gateway requires a payment")
	}
	return map[string]any{
		"payment_id":   order.Payment.ID,
		"amount":       order.Payment.Total.String(),
		"currency":     order.Payment.Currency,
		"instructions": g.Instructions,
	}, nil
}

func (g ManualGateway) TriggerPaymentProcessed(ctx context.Context, payment *billing.Payment, membership *billing.Membership) error {
	return nil
}
