package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DeliveryEstimate — срок ожидаемой доставки от момента оформления.
	DeliveryEstimate = 7 * 24 * time.Hour
)

// TaxRate — фиксированная ставка налога (8%).
var TaxRate = decimal.RequireFromString("0.08")

// Receipt — чек, который формируется только в момент оформления и не хранится.
type Receipt struct {
	OrderNumber       string
	CustomerName      string
	CustomerEmail     string
	Items             []OrderItem
	Subtotal          decimal.Decimal
	Tax               decimal.Decimal
	Total             decimal.Decimal
	Timestamp         time.Time
	Status            OrderStatus
	EstimatedDelivery time.Time
}

// NewReceipt строит чек по сохранённому заказу. customerName и customerEmail
// передаются в том виде, в каком их ввёл покупатель.
func NewReceipt(order Order, customerName, customerEmail string, now time.Time) Receipt {
	subtotal := order.Total
	return Receipt{
		OrderNumber:       order.OrderNumber,
		CustomerName:      customerName,
		CustomerEmail:     customerEmail,
		Items:             append([]OrderItem(nil), order.Items...),
		Subtotal:          subtotal,
		Tax:               subtotal.Mul(TaxRate).Round(2),
		Total:             subtotal.Mul(decimal.NewFromInt(1).Add(TaxRate)).Round(2),
		Timestamp:         now,
		Status:            order.Status,
		EstimatedDelivery: now.Add(DeliveryEstimate),
	}
}
