package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantcart/pkg/async"
	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/cart"
	"github.com/platinummonkey/tenantcart/pkg/observability"
	"github.com/platinummonkey/tenantcart/pkg/sites"
	"github.com/platinummonkey/tenantcart/pkg/storage"
	"github.com/platinummonkey/tenantcart/pkg/swaps"
)

// Order processing error codes
const (
	CodeNoGateway             = "no-gateway"
	CodeEmptyCart             = "empty-cart"
	CodeMissingEmail          = "missing-email"
	CodeInvalidBillingPeriods = "invalid-billing-periods"
	CodeOrderSubmission       = "exception-order-submission"
	CodeGatewayError          = "gateway-error"
)

// CustomerInput identifies a customer who has no account yet
type CustomerInput struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
}

// SiteInput describes the site to create with a new membership
type SiteInput struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

// OrderRequest is one checkout submission
type OrderRequest struct {
	Cart      cart.Request   `json:"cart"`
	GatewayID string         `json:"gateway_id,omitempty"`
	Customer  *CustomerInput `json:"customer,omitempty"`
	Site      *SiteInput     `json:"site,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// Result describes a submitted order
type Result struct {
	Cart             *cart.Cart               `json:"cart"`
	GatewayID        string                   `json:"gateway_id"`
	CustomerID       int64                    `json:"customer_id"`
	MembershipID     int64                    `json:"membership_id"`
	MembershipStatus billing.MembershipStatus `json:"membership_status"`
	PaymentID        int64                    `json:"payment_id"`
	PaymentStatus    billing.PaymentStatus    `json:"payment_status"`
	SiteID           int64                    `json:"site_id,omitempty"`
	SwapID           int64                    `json:"swap_id,omitempty"`
	GatewayData      map[string]any           `json:"gateway_data,omitempty"`
}

// Processor submits checkout orders
type Processor struct {
	deps     cart.Deps
	tx       TxRunner
	gateways *Registry
	drafts   DraftStore
	metrics  *observability.Metrics
	otel     *observability.OTelMetrics
	tracer   trace.Tracer
	logger   *observability.Logger

	requireEmailVerification bool
}

// Option configures a Processor
type Option func(*Processor)

// WithDrafts clears the session draft after a committed order
func WithDrafts(drafts DraftStore) Option {
	return func(p *Processor) { p.drafts = drafts }
}

// WithMetrics records Prometheus metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithOTelMetrics records OpenTelemetry metrics
func WithOTelMetrics(m *observability.OTelMetrics) Option {
	return func(p *Processor) { p.otel = m }
}

// WithLogger sets the processor's logger
func WithLogger(logger *observability.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithEmailVerification makes new customers unverified until they confirm
// their email. Unverified customers are never activated for free.
func WithEmailVerification(required bool) Option {
	return func(p *Processor) { p.requireEmailVerification = required }
}

// NewProcessor creates an order processor. deps are used to build carts;
// writes go through tx.
func NewProcessor(deps cart.Deps, tx TxRunner, gateways *Registry, opts ...Option) *Processor {
	p := &Processor{
		deps:     deps,
		tx:       tx,
		gateways: gateways,
		tracer:   observability.Tracer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = observability.NewNopLogger()
	}
	if p.gateways == nil {
		p.gateways = NewRegistry()
	}
	if p.deps.Logger == nil {
		p.deps.Logger = p.logger
	}
	return p
}

// Preview prices a cart without writing anything.
func (p *Processor) Preview(ctx context.Context, req cart.Request) (*cart.Cart, cart.Errors) {
	ctx, span := p.tracer.Start(ctx, "checkout.Preview")
	defer span.End()

	deps := p.deps
	deps.ReadOnly = true
	start := time.Now()
	c, errs := cart.Build(ctx, req, deps)
	p.metrics.RecordCartBuild(string(c.Type()), time.Since(start), len(errs) > 0)
	span.SetAttributes(attribute.String("cart.type", string(c.Type())))
	return c, errs
}

// ProcessOrder builds, validates and submits an order. Validation and
// submission failures are returned as cart.Errors. A gateway failure after
// commit returns both the Result and the error, since the pending payment
// can be retried.
func (p *Processor) ProcessOrder(ctx context.Context, req OrderRequest) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "checkout.ProcessOrder")
	defer span.End()
	start := time.Now()

	c, errs := cart.Build(ctx, req.Cart, p.deps)
	p.metrics.RecordCartBuild(string(c.Type()), time.Since(start), len(errs) > 0)
	p.metrics.RecordCancelledPayments(len(c.CancelledPayments()))
	span.SetAttributes(attribute.String("cart.type", string(c.Type())))
	log := p.logger.WithField("cart_type", string(c.Type()))

	if len(errs) > 0 {
		return nil, p.reject(ctx, span, c, req.GatewayID, start, errs)
	}
	if !c.IsValid() {
		return nil, p.reject(ctx, span, c, req.GatewayID, start, cart.Errors{{
			Code:    CodeInvalidBillingPeriods,
			Message: "The products in the cart do not share a billing period.",
		}})
	}

	gateway, errs := p.resolveGateway(c, req.GatewayID)
	if len(errs) > 0 {
		return nil, p.reject(ctx, span, c, req.GatewayID, start, errs)
	}
	if errs := p.validate(c, req); len(errs) > 0 {
		return nil, p.reject(ctx, span, c, gateway.ID(), start, errs)
	}
	span.SetAttributes(attribute.String("checkout.gateway", gateway.ID()))

	var order *Order
	err := p.tx.RunInTx(ctx, func(ctx context.Context, stores Stores) (txErr error) {
		defer func() {
			if r := recover(); r != nil {
				txErr = observability.NewPanicError(r)
			}
		}()
		order, txErr = p.submit(ctx, stores, c, req, gateway)
		return txErr
	})
	if err != nil {
		log.WithError(err).Error("order submission rolled back")
		data := map[string]any{"error": err.Error()}
		var panicErr *observability.PanicError
		if errors.As(err, &panicErr) {
			data["stack"] = panicErr.Stack
		}
		return nil, p.reject(ctx, span, c, gateway.ID(), start, cart.Errors{{
			Code:    CodeOrderSubmission,
			Message: "The order could not be submitted.",
			Data:    data,
		}})
	}

	p.clearDraft(ctx, req.SessionID)
	result := newResult(order, gateway.ID())

	if gateway.ID() != FreeGatewayID {
		data, err := gateway.ProcessCheckout(ctx, order)
		if err != nil {
			log.WithError(err).WithField("payment_id", order.Payment.ID).Error("gateway failed to process checkout")
			return result, p.reject(ctx, span, c, gateway.ID(), start, cart.Errors{{
				Code:    CodeGatewayError,
				Message: err.Error(),
			}})
		}
		result.GatewayData = data
	}

	if credit := c.ProrationCredit(); credit.IsPositive() {
		p.metrics.RecordProrationCredit(credit.InexactFloat64())
	}
	p.record(ctx, c, gateway.ID(), "success", start)
	log.WithFields(map[string]any{
		"payment_id":    result.PaymentID,
		"membership_id": result.MembershipID,
		"gateway":       gateway.ID(),
	}).Info("order submitted")
	return result, nil
}

func (p *Processor) reject(ctx context.Context, span trace.Span, c *cart.Cart, gatewayID string, start time.Time, errs cart.Errors) cart.Errors {
	span.SetStatus(codes.Error, errs.Error())
	span.RecordError(errs)
	p.record(ctx, c, gatewayID, "error", start)
	return errs
}

func (p *Processor) record(ctx context.Context, c *cart.Cart, gatewayID, result string, start time.Time) {
	if gatewayID == "" {
		gatewayID = "none"
	}
	p.metrics.RecordOrder(gatewayID, result)
	p.otel.RecordOrder(ctx, gatewayID, string(c.Type()), result, c.Total().InexactFloat64(), time.Since(start))
}

// resolveGateway forces the free gateway when nothing has to be collected.
func (p *Processor) resolveGateway(c *cart.Cart, id string) (Gateway, cart.Errors) {
	if !c.ShouldCollectPayment() {
		free, _ := p.gateways.Get(FreeGatewayID)
		return free, nil
	}
	if id == "" || id == FreeGatewayID {
		return nil, cart.Errors{{Code: CodeNoGateway, Message: "A payment gateway is required for this order."}}
	}
	g, ok := p.gateways.Get(id)
	if !ok {
		return nil, cart.Errors{{Code: CodeNoGateway, Message: fmt.Sprintf("The payment gateway %q is not available.", id)}}
	}
	return g, nil
}

func (p *Processor) validate(c *cart.Cart, req OrderRequest) cart.Errors {
	var errs cart.Errors
	if c.Type() != cart.TypeRetry && len(c.LineItems()) == 0 {
		errs = append(errs, cart.Error{Code: CodeEmptyCart, Message: "There are no products in the cart."})
	}
	if c.Customer() == nil && (req.Customer == nil || strings.TrimSpace(req.Customer.Email) == "") {
		errs = append(errs, cart.Error{Code: CodeMissingEmail, Message: "An email address is required."})
	}
	return errs
}

// submit creates or loads every record of the order. It runs inside the
// transaction.
func (p *Processor) submit(ctx context.Context, stores Stores, c *cart.Cart, req OrderRequest, gateway Gateway) (*Order, error) {
	now := c.Now()

	customer, err := p.ensureCustomer(ctx, stores, c, req, now)
	if err != nil {
		return nil, err
	}
	m, pending, err := p.pendingOrder(ctx, stores, c, gateway, now)
	if err != nil {
		return nil, err
	}
	if m == nil {
		if m, err = p.ensureMembership(ctx, stores, c, customer, gateway, now); err != nil {
			return nil, err
		}
	}
	order := &Order{Cart: c, Customer: customer, Membership: m}

	if c.HasScheduledSwap() {
		if order.Swap, err = p.scheduleSwap(ctx, stores, c, m, now); err != nil {
			return nil, err
		}
	}

	if req.Site != nil && c.Type() == cart.TypeNew && pending == nil {
		site := &sites.Site{
			CustomerID:   customer.ID,
			MembershipID: m.ID,
			Title:        req.Site.Title,
			Path:         req.Site.Path,
			CreatedAt:    now,
		}
		if err := stores.Sites.CreatePendingSite(ctx, site); err != nil {
			return nil, fmt.Errorf("failed to create pending site: %w", err)
		}
		order.Site = site
	}

	if pending != nil {
		order.Payment, err = p.reusePayment(ctx, stores, pending, gateway, now)
	} else {
		order.Payment, err = p.ensurePayment(ctx, stores, c, customer, m, gateway, now)
	}
	if err != nil {
		return nil, err
	}

	if gateway.ID() == FreeGatewayID {
		if err := p.settleWithoutCharge(ctx, stores, order, gateway, now); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (p *Processor) ensureCustomer(ctx context.Context, stores Stores, c *cart.Cart, req OrderRequest, now time.Time) (*billing.Customer, error) {
	if existing := c.Customer(); existing != nil {
		customer := *existing
		return &customer, nil
	}
	customer := &billing.Customer{
		Email:     strings.TrimSpace(req.Customer.Email),
		Username:  req.Customer.Username,
		Verified:  !p.requireEmailVerification,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := stores.Customers.CreateCustomer(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return customer, nil
}

func (p *Processor) ensureMembership(ctx context.Context, stores Stores, c *cart.Cart, customer *billing.Customer, gateway Gateway, now time.Time) (*billing.Membership, error) {
	if existing := c.Membership(); existing != nil && c.Type() != cart.TypeNew {
		m := *existing
		return &m, nil
	}

	period := c.Period()
	m := &billing.Membership{
		CustomerID:    customer.ID,
		PlanID:        c.PlanID(),
		AddonProducts: c.AddonQuantities(),
		Currency:      c.Currency(),
		Amount:        c.RecurringTotal(),
		InitialAmount: c.Total(),
		Duration:      period.Duration,
		DurationUnit:  period.DurationUnit,
		BillingCycles: period.BillingCycles,
		Recurring:     c.HasRecurring(),
		AutoRenew:     c.AutoRenew(),
		Status:        billing.MembershipStatusPending,
		GatewayID:     gateway.ID(),
		DateCreated:   now,
		UpdatedAt:     now,
	}
	if !m.Recurring {
		m.Amount = c.Total()
	}
	if d := c.DiscountCode(); d != nil {
		m.DiscountCode = d.Code
	}
	if start := c.BillingStartDate(); start != nil {
		m.DateTrialEnd = start
		m.DateExpiration = start
	}
	if err := stores.Memberships.CreateMembership(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}
	return m, nil
}

// pendingOrder finds an unpaid order the customer already placed for the
// same new cart. Resubmitting a checkout picks it up again instead of
// creating another pending membership and payment.
func (p *Processor) pendingOrder(ctx context.Context, stores Stores, c *cart.Cart, gateway Gateway, now time.Time) (*billing.Membership, *billing.Payment, error) {
	if c.Type() != cart.TypeNew || c.Customer() == nil {
		return nil, nil, nil
	}
	payments, err := stores.Payments.ListPendingPayments(ctx, c.Customer().ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pending payments: %w", err)
	}

	fingerprint := c.Fingerprint()
	for _, payment := range payments {
		if payment.Fingerprint != fingerprint || payment.MembershipID == 0 {
			continue
		}
		m, err := stores.Memberships.GetMembership(ctx, payment.MembershipID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load membership %d: %w", payment.MembershipID, err)
		}
		if m.Status != billing.MembershipStatusPending {
			continue
		}
		if m.GatewayID != gateway.ID() {
			m.GatewayID = gateway.ID()
			m.UpdatedAt = now
			if err := stores.Memberships.UpdateMembership(ctx, m); err != nil {
				return nil, nil, fmt.Errorf("failed to update membership: %w", err)
			}
		}
		return m, payment, nil
	}
	return nil, nil, nil
}

// scheduleSwap defers a downgrade to the end of the current cycle.
func (p *Processor) scheduleSwap(ctx context.Context, stores Stores, c *cart.Cart, m *billing.Membership, now time.Time) (*swaps.Swap, error) {
	period := c.Period()
	at := now
	if m.DateExpiration != nil {
		at = *m.DateExpiration
	}
	swap := &swaps.Swap{
		MembershipID:  m.ID,
		PlanID:        c.PlanID(),
		AddonProducts: c.AddonQuantities(),
		Amount:        c.RecurringTotal(),
		Duration:      period.Duration,
		DurationUnit:  period.DurationUnit,
		BillingCycles: period.BillingCycles,
		ScheduledFor:  at,
	}
	if err := stores.Swaps.ScheduleSwap(ctx, swap); err != nil {
		return nil, fmt.Errorf("failed to schedule swap: %w", err)
	}
	return swap, nil
}

// ensurePayment reuses a pending payment for the same cart instead of
// creating a duplicate.
func (p *Processor) ensurePayment(ctx context.Context, stores Stores, c *cart.Cart, customer *billing.Customer, m *billing.Membership, gateway Gateway, now time.Time) (*billing.Payment, error) {
	fingerprint := c.Fingerprint()

	if existing := c.Payment(); existing != nil && existing.Status == billing.PaymentStatusPending &&
		(c.Type() == cart.TypeRetry || existing.Fingerprint == fingerprint) {
		return p.reusePayment(ctx, stores, existing, gateway, now)
	}
	if c.Type() != cart.TypeNew {
		last, err := stores.Payments.GetLastPendingPayment(ctx, m.ID)
		switch {
		case err == nil && last.Fingerprint == fingerprint:
			return p.reusePayment(ctx, stores, last, gateway, now)
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("failed to load pending payment: %w", err)
		}
	}

	payment := &billing.Payment{
		CustomerID:    customer.ID,
		MembershipID:  m.ID,
		Status:        billing.PaymentStatusPending,
		Currency:      c.Currency(),
		CartType:      string(c.Type()),
		GatewayID:     gateway.ID(),
		Subtotal:      c.Subtotal(),
		DiscountTotal: c.TotalDiscounts(),
		TaxTotal:      c.TotalTaxes(),
		Total:         c.Total(),
		LineItems:     c.LineItems(),
		Fingerprint:   fingerprint,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if d := c.DiscountCode(); d != nil {
		payment.DiscountCode = d.Code
	}
	if err := stores.Payments.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return payment, nil
}

func (p *Processor) reusePayment(ctx context.Context, stores Stores, existing *billing.Payment, gateway Gateway, now time.Time) (*billing.Payment, error) {
	payment := *existing
	payment.GatewayID = gateway.ID()
	payment.UpdatedAt = now
	if err := stores.Payments.UpdatePayment(ctx, &payment); err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	return &payment, nil
}

// settleWithoutCharge handles orders on the free gateway: trials that need
// no payment method, scheduled swaps and fully free carts.
func (p *Processor) settleWithoutCharge(ctx context.Context, stores Stores, order *Order, gateway Gateway, now time.Time) error {
	c, m, payment, customer := order.Cart, order.Membership, order.Payment, order.Customer

	switch {
	case c.HasTrial() && p.deps.Settings.AllowTrialWithoutPaymentMethod:
		m.Status = billing.MembershipStatusTrialing
		m.DateTrialEnd = c.BillingStartDate()
		m.DateExpiration = c.BillingStartDate()
		m.UpdatedAt = now
		if err := stores.Memberships.UpdateMembership(ctx, m); err != nil {
			return fmt.Errorf("failed to start trial: %w", err)
		}
		customer.HasTrialed = true
		customer.UpdatedAt = now
		if err := stores.Customers.UpdateCustomer(ctx, customer); err != nil {
			return fmt.Errorf("failed to update customer: %w", err)
		}
		return nil

	case c.HasScheduledSwap():
		return p.completePayment(ctx, stores, payment, now)

	case c.IsFree():
		if !customer.Verified {
			p.logger.WithCustomer(customer.ID).Info("free membership waits for email verification")
			return nil
		}
		if err := p.completePayment(ctx, stores, payment, now); err != nil {
			return err
		}
		activate(m, c, now)
		if err := stores.Memberships.UpdateMembership(ctx, m); err != nil {
			return fmt.Errorf("failed to activate membership: %w", err)
		}
		if err := gateway.TriggerPaymentProcessed(ctx, payment, m); err != nil {
			return fmt.Errorf("failed to notify gateway: %w", err)
		}
	}
	return nil
}

func (p *Processor) completePayment(ctx context.Context, stores Stores, payment *billing.Payment, now time.Time) error {
	payment.Status = billing.PaymentStatusCompleted
	payment.UpdatedAt = now
	if err := stores.Payments.UpdatePayment(ctx, payment); err != nil {
		return fmt.Errorf("failed to complete payment: %w", err)
	}
	return nil
}

// activate applies a paid cart to its membership and starts a new cycle.
func activate(m *billing.Membership, c *cart.Cart, now time.Time) {
	if c.Type().IsMembershipChange() {
		m.PlanID = c.PlanID()
		addons := c.AddonQuantities()
		if c.Type() == cart.TypeAddon {
			for id, qty := range m.AddonProducts {
				addons[id] += qty
			}
		}
		m.AddonProducts = addons
		period := c.Period()
		m.Duration = period.Duration
		m.DurationUnit = period.DurationUnit
		m.BillingCycles = period.BillingCycles
		m.Recurring = c.HasRecurring()
		m.Amount = c.RecurringTotal()
		if !m.Recurring {
			m.Amount = c.Total()
		}
	}

	m.Status = billing.MembershipStatusActive
	m.TimesBilled++
	m.DateRenewed = &now
	m.DateExpiration = nil
	if !m.IsLifetime() {
		expires := m.DurationUnit.AddTo(now, m.Duration)
		m.DateExpiration = &expires
	}
	m.UpdatedAt = now
}

func (p *Processor) clearDraft(ctx context.Context, sessionID string) {
	if p.drafts == nil || sessionID == "" {
		return
	}
	async.SafeGo(context.WithoutCancel(ctx), p.logger, 5*time.Second, "clear checkout draft", func(ctx context.Context) error {
		return p.drafts.Delete(ctx, sessionID)
	})
}

func newResult(order *Order, gatewayID string) *Result {
	r := &Result{
		Cart:             order.Cart,
		GatewayID:        gatewayID,
		CustomerID:       order.Customer.ID,
		MembershipID:     order.Membership.ID,
		MembershipStatus: order.Membership.Status,
		PaymentID:        order.Payment.ID,
		PaymentStatus:    order.Payment.Status,
	}
	if order.Site != nil {
		r.SiteID = order.Site.ID
	}
	if order.Swap != nil {
		r.SwapID = order.Swap.ID
	}
	return r
}
