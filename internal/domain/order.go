package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, но не подтверждён.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — заказ оформлен; текущий checkout создаёт заказы сразу в этом статусе.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// OrderItem — замороженная копия позиции на момент оформления.
type OrderItem struct {
	// ProductID пуст для позиций, переданных клиентом без ссылки на товар.
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

// Order — запись журнала заказов. Позиции и итог не меняются после сохранения.
type Order struct {
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	Items         []OrderItem
	Total         decimal.Decimal
	Status        OrderStatus
	CreatedAt     time.Time
}

var (
	errOrderNumberRequired = newError(ErrInvalidArgument, "order number is required")
	errOrderItemsRequired  = newError(ErrInvalidArgument, "order must contain at least one item")
	errOrderItemQty        = newError(ErrInvalidArgument, "order item quantity must be greater than zero")
	errOrderTotalMismatch  = newError(ErrInvalidArgument, "order total does not match items sum")
	errOrderStatusInvalid  = newError(ErrInvalidArgument, "order status is invalid")
)

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OrderNumber == "" {
		errs = append(errs, errOrderNumberRequired)
	}
	if o.CustomerName == "" || o.CustomerEmail == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, errOrderStatusInvalid)
	}
	if len(o.Items) == 0 {
		errs = append(errs, errOrderItemsRequired)
	}

	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, errOrderItemQty)
		}
		if item.Price.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if !SumItems(o.Items).Equal(o.Total) {
		errs = append(errs, errOrderTotalMismatch)
	}

	return errs
}

// Validate объединяет замечания ValidateInvariants в одну ошибку.
func (o *Order) Validate() error {
	return errors.Join(o.ValidateInvariants()...)
}

// Clone возвращает копию заказа с независимым слайсом позиций.
func (o Order) Clone() Order {
	dst := o
	dst.Items = append([]OrderItem(nil), o.Items...)
	return dst
}

// SumItems считает итог заказа: сумма price * quantity, округлённая до двух знаков.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total.Round(2)
}
