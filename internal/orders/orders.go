package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/fee"
	"github.com/and161185/checkout/internal/gateway"
	"github.com/and161185/checkout/internal/model"
	"github.com/and161185/checkout/internal/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Storage interface {
	GetOffer(ctx context.Context, id uuid.UUID) (model.Offer, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetFeePlan(ctx context.Context, id uuid.UUID) (model.FeePlan, error)

	// CreateOrder stores order. When an order with the same offer and
	// checkout key exists it is returned with created=false.
	CreateOrder(ctx context.Context, order model.Order) (model.Order, bool, error)
	GetOrder(ctx context.Context, id uuid.UUID) (model.Order, error)
	GetOrderByProviderRef(ctx context.Context, provider, ref string) (model.Order, error)
	// AttachIntent sets the provider reference of a PENDING order that has
	// none. Otherwise the stored order is returned with attached=false.
	AttachIntent(ctx context.Context, id uuid.UUID, provider, ref string, payload model.ProviderPayload) (model.Order, bool, error)
	// TransitionOrder moves a PENDING order to status and reports whether
	// this call did it.
	TransitionOrder(ctx context.Context, id uuid.UUID, status model.OrderStatus, at time.Time) (bool, error)
	ListSellerOrders(ctx context.Context, sellerID uuid.UUID) ([]model.Order, error)
	ListPaidOrdersWithoutEntry(ctx context.Context, limit int) ([]model.Order, error)
}

type Selector interface {
	Select(method model.Method, routing gateway.Routing) (gateway.Adapter, error)
}

type Settings interface {
	Routing() gateway.Routing
	DefaultFeePlan() model.FeePlan
}

type Wallet interface {
	CreditPending(ctx context.Context, order model.Order, b model.FeeBreakdown, releaseAt time.Time) (model.WalletEntry, bool, error)
	EntryForOrder(ctx context.Context, orderID uuid.UUID) (model.WalletEntry, error)
}

const DefaultBoletoDueDays = 3

type Ledger struct {
	storage   Storage
	selector  Selector
	settings  Settings
	wallet    Wallet
	logger    *zap.SugaredLogger
	notifyURL func(provider string) string
	now       func() time.Time

	BoletoDueDays int
}

func NewLedger(storage Storage, selector Selector, settings Settings, wallet Wallet, logger *zap.SugaredLogger, notifyURL func(string) string) *Ledger {
	if notifyURL == nil {
		notifyURL = func(string) string { return "" }
	}
	return &Ledger{
		storage:       storage,
		selector:      selector,
		settings:      settings,
		wallet:        wallet,
		logger:        logger,
		notifyURL:     notifyURL,
		now:           time.Now,
		BoletoDueDays: DefaultBoletoDueDays,
	}
}

type CheckoutInput struct {
	OfferID     uuid.UUID
	Method      string
	Buyer       model.Buyer
	Address     *model.Address
	Card        *gateway.Card
	CheckoutKey string
}

// Create validates the checkout, stores a PENDING order and asks a provider
// for a payment intent. On a gateway failure the stored order is returned
// together with the error so the caller can retry with Pay.
func (l *Ledger) Create(ctx context.Context, in CheckoutInput) (model.Order, error) {
	method, ok := model.ParseMethod(in.Method)
	if !ok {
		return model.Order{}, errs.ErrInvalidMethod
	}

	offer, err := l.storage.GetOffer(ctx, in.OfferID)
	if err != nil {
		return model.Order{}, err
	}
	if !offer.Active {
		return model.Order{}, errs.ErrOfferNotFound
	}
	if !offer.Price.IsPositive() {
		return model.Order{}, errs.ErrInvalidAmount
	}

	buyer := in.Buyer
	buyer.Name = strings.TrimSpace(buyer.Name)
	buyer.Document = utils.OnlyDigits(buyer.Document)
	if buyer.Name == "" || !utils.IsValidDocument(buyer.Document) {
		return model.Order{}, errs.ErrInvalidBuyer
	}
	if method == model.MethodCard && (in.Card == nil || in.Card.Token == "") {
		return model.Order{}, errs.ErrCardRequired
	}

	seller, err := l.storage.GetUserByID(ctx, offer.SellerID)
	if err != nil {
		return model.Order{}, fmt.Errorf("load seller %s: %w", offer.SellerID, err)
	}
	if seller.FeePlanID != nil {
		if _, err := l.storage.GetFeePlan(ctx, *seller.FeePlanID); err != nil {
			if errors.Is(err, errs.ErrFeePlanNotFound) {
				return model.Order{}, errs.NewConfigurationError("seller %s references missing fee plan %s", seller.ID, *seller.FeePlanID)
			}
			return model.Order{}, err
		}
	}

	order := model.Order{
		ID:          uuid.New(),
		OfferID:     offer.ID,
		SellerID:    offer.SellerID,
		FeePlanID:   seller.FeePlanID,
		CheckoutKey: in.CheckoutKey,
		Gross:       offer.Price.Round(2),
		Method:      method,
		Status:      model.Pending,
		Buyer:       buyer,
		Address:     in.Address,
		Description: offer.Title,
		CreatedAt:   l.now().UTC(),
	}

	stored, created, err := l.storage.CreateOrder(ctx, order)
	if err != nil {
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}
	if created {
		l.logger.Infow("order_created",
			"order_id", stored.ID,
			"seller_id", stored.SellerID,
			"method", stored.Method,
			"gross", stored.Gross.StringFixed(2),
		)
	} else {
		l.logger.Infow("order_checkout_key_reused", "order_id", stored.ID, "checkout_key", in.CheckoutKey)
	}

	return l.Pay(ctx, stored.ID, in.Card)
}

func (l *Ledger) Pay(ctx context.Context, orderID uuid.UUID, card *gateway.Card) (model.Order, error) {
	order, err := l.storage.GetOrder(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	switch {
	case order.Status == model.Cancelled:
		return order, errs.ErrPaymentDeclined
	case order.Status == model.Paid, order.ProviderRef != "":
		return order, nil
	}
	if order.Method == model.MethodCard && (card == nil || card.Token == "") {
		return order, errs.ErrCardRequired
	}

	adapter, err := l.selector.Select(order.Method, l.settings.Routing())
	if err != nil {
		l.logger.Errorw("provider_selection_failed", "order_id", order.ID, "method", order.Method, "error", err)
		return order, err
	}

	req := gateway.PaymentRequest{
		Amount:            order.Gross,
		Method:            order.Method,
		Buyer:             order.Buyer,
		Address:           order.Address,
		Description:       order.Description,
		ExternalReference: order.ID.String(),
		NotificationURL:   l.notifyURL(adapter.ID()),
		Card:              card,
	}
	if order.Method == model.MethodBoleto {
		req.DueDate = l.now().AddDate(0, 0, l.BoletoDueDays)
	}

	result, err := adapter.CreatePayment(ctx, req)
	if err != nil {
		l.logger.Warnw("gateway_call_failed",
			"order_id", order.ID,
			"provider", adapter.ID(),
			"error", err,
		)
		if !errs.IsGateway(err) && !errs.IsConfiguration(err) {
			err = &errs.GatewayError{Provider: adapter.ID(), Retryable: true, Err: err}
		}
		return order, err
	}

	if result.Outcome == gateway.Rejected {
		l.logger.Infow("payment_rejected",
			"order_id", order.ID,
			"provider", adapter.ID(),
			"reason", result.DeclineReason,
		)
		if result.ProviderRef != "" {
			if order, _, err = l.storage.AttachIntent(ctx, order.ID, adapter.ID(), result.ProviderRef, result.Payload); err != nil {
				return order, fmt.Errorf("attach rejected intent: %w", err)
			}
		}
		if _, err := l.Complete(ctx, order.ID, model.Cancelled); err != nil {
			return order, err
		}
		order, err = l.storage.GetOrder(ctx, order.ID)
		if err != nil {
			return model.Order{}, err
		}
		return order, errs.ErrPaymentDeclined
	}

	if result.ProviderRef == "" {
		return order, &errs.GatewayError{Provider: adapter.ID(), Err: errors.New("provider returned no reference")}
	}

	stored, attached, err := l.storage.AttachIntent(ctx, order.ID, adapter.ID(), result.ProviderRef, result.Payload)
	if err != nil {
		return order, fmt.Errorf("attach intent: %w", err)
	}
	if !attached {
		// параллельный запрос успел первым
		l.logger.Infow("intent_already_attached", "order_id", order.ID, "provider_ref", stored.ProviderRef)
		return stored, nil
	}
	l.logger.Infow("intent_attached",
		"order_id", stored.ID,
		"provider", stored.Provider,
		"provider_ref", stored.ProviderRef,
		"outcome", result.Outcome,
	)

	if result.Outcome == gateway.Approved {
		if _, err := l.Complete(ctx, stored.ID, model.Paid); err != nil {
			return stored, err
		}
		return l.storage.GetOrder(ctx, stored.ID)
	}
	return stored, nil
}

// Complete moves a PENDING order to status. Only the call that wins the
// transition books the wallet entry; every other call returns false and nil.
func (l *Ledger) Complete(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("complete order %s: %s is not terminal", orderID, status)
	}

	won, err := l.storage.TransitionOrder(ctx, orderID, status, l.now().UTC())
	if err != nil {
		return false, fmt.Errorf("transition order %s: %w", orderID, err)
	}
	if !won {
		l.logger.Debugw("order_transition_skipped", "order_id", orderID, "status", status)
		return false, nil
	}

	if status == model.Cancelled {
		l.logger.Infow("order_cancelled", "order_id", orderID)
		return true, nil
	}

	order, err := l.storage.GetOrder(ctx, orderID)
	if err != nil {
		return true, err
	}
	l.logger.Infow("order_paid", "order_id", order.ID, "seller_id", order.SellerID, "gross", order.Gross.StringFixed(2))

	if err := l.credit(ctx, order); err != nil {
		// Backfill picks the order up on the next sweep.
		l.logger.Errorw("wallet_credit_failed", "order_id", order.ID, "error", err)
		return true, err
	}
	return true, nil
}

func (l *Ledger) credit(ctx context.Context, order model.Order) error {
	plan, err := l.planFor(ctx, order)
	if err != nil {
		return err
	}

	b := fee.Compute(order.Gross, order.Method, plan)
	if b.Clamped {
		l.logger.Warnw("fee_plan_exceeds_gross",
			"order_id", order.ID,
			"fee_plan", plan.Name,
			"gross", b.Gross.StringFixed(2),
			"fee", b.Fee.StringFixed(2),
		)
	}

	paidAt := l.now().UTC()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}
	_, _, err = l.wallet.CreditPending(ctx, order, b, fee.ReleaseAt(paidAt, order.Method, plan))
	return err
}

func (l *Ledger) planFor(ctx context.Context, order model.Order) (model.FeePlan, error) {
	if order.FeePlanID == nil {
		return l.settings.DefaultFeePlan(), nil
	}
	plan, err := l.storage.GetFeePlan(ctx, *order.FeePlanID)
	if errors.Is(err, errs.ErrFeePlanNotFound) {
		return model.FeePlan{}, errs.NewConfigurationError("order %s references missing fee plan %s", order.ID, *order.FeePlanID)
	}
	return plan, err
}

func (l *Ledger) Backfill(ctx context.Context, limit int) (int, error) {
	orphans, err := l.storage.ListPaidOrdersWithoutEntry(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list paid orders without entry: %w", err)
	}

	n := 0
	for _, order := range orphans {
		if err := l.credit(ctx, order); err != nil {
			l.logger.Errorw("wallet_backfill_failed", "order_id", order.ID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		l.logger.Infow("wallet_backfilled", "count", n)
	}
	return n, nil
}

func (l *Ledger) Get(ctx context.Context, orderID uuid.UUID) (model.Order, error) {
	return l.storage.GetOrder(ctx, orderID)
}

// AttachReference stores a provider reference learned from a webhook for an
// order whose payment creation answer never arrived.
func (l *Ledger) AttachReference(ctx context.Context, orderID uuid.UUID, provider, ref string) (model.Order, error) {
	stored, attached, err := l.storage.AttachIntent(ctx, orderID, provider, ref, model.ProviderPayload{TransactionID: ref})
	if err != nil {
		return model.Order{}, fmt.Errorf("attach reference: %w", err)
	}
	if attached {
		l.logger.Infow("intent_attached", "order_id", stored.ID, "provider", provider, "provider_ref", ref, "source", "webhook")
	}
	return stored, nil
}

func (l *Ledger) FindByProviderRef(ctx context.Context, provider, ref string) (model.Order, error) {
	return l.storage.GetOrderByProviderRef(ctx, provider, ref)
}

func (l *Ledger) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]model.Order, error) {
	return l.storage.ListSellerOrders(ctx, sellerID)
}

func (l *Ledger) Receipt(ctx context.Context, sellerID, orderID uuid.UUID) (model.Order, model.FeeBreakdown, error) {
	order, err := l.storage.GetOrder(ctx, orderID)
	if err != nil {
		return model.Order{}, model.FeeBreakdown{}, err
	}
	if order.SellerID != sellerID || order.Status != model.Paid {
		return model.Order{}, model.FeeBreakdown{}, errs.ErrOrderNotFound
	}

	entry, err := l.wallet.EntryForOrder(ctx, order.ID)
	if err != nil {
		return model.Order{}, model.FeeBreakdown{}, err
	}
	return order, entry.Breakdown(), nil
}
