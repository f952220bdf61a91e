package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
)

const (
	// EventOrderPlaced — тип события outbox после сохранения заказа.
	EventOrderPlaced = "order.placed"

	aggregateTypeOrder  = "order"
	maxOrderNumberTries = 5
	defaultRecentOrders = 100
)

// ItemRequest задаёт явную позицию из запроса на оформление.
// Если ProductID пуст, используются Name и Price клиента.
type ItemRequest struct {
	ProductID string
	Name      string
	Price     *decimal.Decimal
	Quantity  int
}

// Request содержит входные данные оформления заказа.
type Request struct {
	UserID        string
	CustomerName  string
	CustomerEmail string
	Items         []ItemRequest
}

// Result возвращает сохранённый заказ и чек.
type Result struct {
	Order   domain.Order
	Receipt domain.Receipt
}

// OrderPlacedEvent сериализуется в payload события order.placed.
type OrderPlacedEvent struct {
	OrderNumber   string    `json:"order_number"`
	CustomerEmail string    `json:"customer_email"`
	Total         string    `json:"total"`
	ItemCount     int       `json:"item_count"`
	PlacedAt      time.Time `json:"placed_at"`
}

// Processor оформляет заказы из корзины или из явного списка позиций.
type Processor struct {
	carts    *cart.Service
	products domain.ProductRepository
	ledger   domain.OrderLedger
	outbox   domain.OutboxRepository
	numbers  *OrderNumberGenerator
	metrics  *metrics.StorefrontMetrics
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Processor.
type Option func(*Processor)

// WithOutbox включает публикацию order.placed через outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(p *Processor) {
		p.outbox = outbox
	}
}

// WithMetrics задаёт бизнес-метрики.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock подменяет источник времени для заказа и чека.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithOrderNumbers подменяет генератор номеров заказов.
func WithOrderNumbers(g *OrderNumberGenerator) Option {
	return func(p *Processor) {
		if g != nil {
			p.numbers = g
		}
	}
}

// NewProcessor создаёт процессор оформления заказов.
func NewProcessor(carts *cart.Service, products domain.ProductRepository, ledger domain.OrderLedger, options ...Option) *Processor {
	p := &Processor{
		carts:    carts,
		products: products,
		ledger:   ledger,
		numbers:  NewOrderNumberGenerator(),
		logger:   log.WithField("component", "checkout"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Checkout проверяет покупателя, фиксирует позиции и сохраняет заказ.
// Корзина очищается только если она была источником позиций.
func (p *Processor) Checkout(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	result, err := p.checkout(ctx, req)
	p.metrics.RecordCheckout(checkoutResult(err), time.Since(started))
	if err == nil {
		p.metrics.RecordOrderTotal(result.Order.Total.InexactFloat64())
	}
	return result, err
}

func (p *Processor) checkout(ctx context.Context, req Request) (Result, error) {
	name := strings.TrimSpace(req.CustomerName)
	email := strings.TrimSpace(req.CustomerEmail)
	if name == "" || email == "" {
		return Result{}, domain.ErrCustomerRequired
	}
	if !strings.Contains(email, "@") {
		return Result{}, domain.ErrEmailInvalid
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	customer := customerInfo{
		name:         name,
		email:        strings.ToLower(email),
		enteredName:  req.CustomerName,
		enteredEmail: req.CustomerEmail,
	}

	if len(req.Items) > 0 {
		items, err := p.resolveExplicit(req.Items)
		if err != nil {
			return Result{}, err
		}
		return p.place(ctx, customer, items)
	}

	var result Result
	err := p.carts.Drain(req.UserID, func(snapshot domain.Cart) error {
		items := p.freezeCart(snapshot)
		placed, err := p.place(ctx, customer, items)
		if err != nil {
			return err
		}
		result = placed
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

type customerInfo struct {
	name         string
	email        string
	enteredName  string
	enteredEmail string
}

func (p *Processor) place(ctx context.Context, customer customerInfo, items []domain.CheckoutItem) (Result, error) {
	frozen := domain.FreezeItems(items)
	now := p.now()

	order := domain.Order{
		CustomerName:  customer.name,
		CustomerEmail: customer.email,
		Items:         frozen,
		Total:         domain.SumItems(frozen),
		Status:        domain.OrderStatusConfirmed,
		CreatedAt:     now,
	}

	var saveErr error
	for attempt := 1; attempt <= maxOrderNumberTries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		order.OrderNumber = p.numbers.Next()
		if err := order.Validate(); err != nil {
			return Result{}, err
		}
		saveErr = p.ledger.Save(order)
		if saveErr == nil {
			break
		}
		if !errors.Is(saveErr, domain.ErrOrderNumberTaken) {
			return Result{}, fmt.Errorf("save order: %w", saveErr)
		}
		p.metrics.RecordOrderNumberCollision()
		p.logger.WithFields(log.Fields{
			"order_number": order.OrderNumber,
			"attempt":      attempt,
		}).Warn("order number collision, retrying")
	}
	if saveErr != nil {
		return Result{}, saveErr
	}

	p.logger.WithFields(log.Fields{
		"order_number": order.OrderNumber,
		"items":        len(order.Items),
		"total":        order.Total.StringFixed(2),
	}).Info("order placed")

	p.enqueuePlaced(order)

	return Result{
		Order:   order,
		Receipt: domain.NewReceipt(order, customer.enteredName, customer.enteredEmail, now),
	}, nil
}

func (p *Processor) resolveExplicit(requested []ItemRequest) ([]domain.CheckoutItem, error) {
	items := make([]domain.CheckoutItem, 0, len(requested))
	for _, item := range requested {
		if !domain.ValidQuantity(item.Quantity) {
			return nil, domain.ErrQuantityInvalid
		}

		productID := strings.TrimSpace(item.ProductID)
		if productID != "" {
			product, err := p.products.Get(productID)
			if err != nil {
				return nil, err
			}
			items = append(items, domain.ResolvedItem{Product: product, Quantity: item.Quantity})
			continue
		}

		if !validPrice(item.Price) {
			return nil, domain.ErrItemPriceInvalid
		}
		items = append(items, domain.FrozenItem{
			Name:     strings.TrimSpace(item.Name),
			Price:    *item.Price,
			Quantity: item.Quantity,
		})
	}
	return items, nil
}

// validPrice принимает неотрицательную цену не точнее копейки: order_items.price хранится как NUMERIC(12,2).
func validPrice(price *decimal.Decimal) bool {
	return price != nil && !price.IsNegative() && price.Equal(price.Round(2))
}

// freezeCart фиксирует позиции корзины по цене добавления; название берётся из каталога.
func (p *Processor) freezeCart(snapshot domain.Cart) []domain.CheckoutItem {
	items := make([]domain.CheckoutItem, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		frozen := domain.FrozenItem{
			ProductID: line.ProductID,
			Price:     line.Price,
			Quantity:  line.Quantity,
		}
		if product, err := p.products.Get(line.ProductID); err == nil {
			frozen.Name = product.Name
		} else if !errors.Is(err, domain.ErrProductNotFound) {
			p.logger.WithError(err).WithField("product_id", line.ProductID).Warn("failed to resolve product name")
		}
		items = append(items, frozen)
	}
	return items
}

func (p *Processor) enqueuePlaced(order domain.Order) {
	if p.outbox == nil {
		return
	}

	payload, err := json.Marshal(OrderPlacedEvent{
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		Total:         order.Total.StringFixed(2),
		ItemCount:     len(order.Items),
		PlacedAt:      order.CreatedAt,
	})
	if err != nil {
		p.logger.WithError(err).Error("marshal order.placed event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: aggregateTypeOrder,
		AggregateID:   order.OrderNumber,
		EventType:     EventOrderPlaced,
		Payload:       payload,
	}
	if _, err := p.outbox.Enqueue(msg); err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"order_number": order.OrderNumber,
			"event":        EventOrderPlaced,
		}).Error("enqueue event failed")
	}
}

// RecentOrders возвращает последние заказы журнала.
func (p *Processor) RecentOrders() ([]domain.Order, error) {
	return p.ledger.ListRecent(defaultRecentOrders)
}

// Order возвращает заказ по номеру.
func (p *Processor) Order(orderNumber string) (domain.Order, error) {
	return p.ledger.GetByOrderNumber(strings.TrimSpace(orderNumber))
}

func checkoutResult(err error) string {
	switch {
	case err == nil:
		return metrics.CheckoutResultSuccess
	case errors.Is(err, domain.ErrInvalidArgument):
		return metrics.CheckoutResultInvalid
	case errors.Is(err, domain.ErrEmptyCart):
		return metrics.CheckoutResultEmptyCart
	case errors.Is(err, domain.ErrNotFound):
		return metrics.CheckoutResultNotFound
	default:
		return metrics.CheckoutResultError
	}
}
