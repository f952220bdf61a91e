// Package dto описывает JSON-представления витрины, общие для HTTP и gRPC.
package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

// InternalErrorMessage отдаётся клиенту вместо текста неклассифицированной ошибки.
const InternalErrorMessage = "Internal server error"

// Money сериализует сумму как JSON-число с двумя знаками после запятой.
func Money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

// Product описывает товар каталога.
type Product struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Price       json.Number `json:"price"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Category    string      `json:"category"`
	InStock     bool        `json:"inStock"`
	Rating      float64     `json:"rating"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// CartLine содержит позицию корзины с вложенным товаром.
type CartLine struct {
	ID        string      `json:"id"`
	ProductID string      `json:"productId"`
	Product   *Product    `json:"product"`
	Quantity  int         `json:"quantity"`
	Price     json.Number `json:"price"`
	Subtotal  json.Number `json:"subtotal"`
	AddedAt   time.Time   `json:"addedAt"`
}

// Cart описывает корзину пользователя.
type Cart struct {
	UserID    string      `json:"userId"`
	Items     []CartLine  `json:"items"`
	Total     json.Number `json:"total"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// OrderItem хранит замороженную позицию заказа.
type OrderItem struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Quantity  int         `json:"quantity"`
}

// Order отражает запись журнала заказов.
type Order struct {
	OrderNumber   string      `json:"orderNumber"`
	CustomerName  string      `json:"customerName"`
	CustomerEmail string      `json:"customerEmail"`
	Items         []OrderItem `json:"items"`
	Total         json.Number `json:"total"`
	Status        string      `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Receipt описывает чек оформленного заказа.
type Receipt struct {
	OrderNumber       string      `json:"orderNumber"`
	CustomerName      string      `json:"customerName"`
	CustomerEmail     string      `json:"customerEmail"`
	Items             []OrderItem `json:"items"`
	Subtotal          json.Number `json:"subtotal"`
	Tax               json.Number `json:"tax"`
	Total             json.Number `json:"total"`
	Timestamp         string      `json:"timestamp"`
	Status            string      `json:"status"`
	EstimatedDelivery string      `json:"estimatedDelivery"`
}

// CheckoutResult возвращается при успешном оформлении.
type CheckoutResult struct {
	Order   Order   `json:"order"`
	Receipt Receipt `json:"receipt"`
}

// FromProduct конвертирует товар.
func FromProduct(p domain.Product) Product {
	return Product{
		ID:          p.ID,
		Name:        p.Name,
		Price:       Money(p.Price),
		Description: p.Description,
		Image:       p.Image,
		Category:    p.Category,
		InStock:     p.InStock,
		Rating:      p.Rating,
		CreatedAt:   p.CreatedAt,
	}
}

// FromProducts конвертирует список товаров; nil превращается в пустой массив.
func FromProducts(products []domain.Product) []Product {
	result := make([]Product, 0, len(products))
	for _, p := range products {
		result = append(result, FromProduct(p))
	}
	return result
}

// FromCart конвертирует корзину вместе с вложенными товарами.
func FromCart(v cart.View) Cart {
	items := make([]CartLine, 0, len(v.Lines))
	for _, line := range v.Lines {
		item := CartLine{
			ID:        line.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     Money(line.Price),
			Subtotal:  Money(line.Subtotal()),
			AddedAt:   line.AddedAt,
		}
		if line.Product != nil {
			product := FromProduct(*line.Product)
			item.Product = &product
		}
		items = append(items, item)
	}
	return Cart{
		UserID:    v.Cart.UserID,
		Items:     items,
		Total:     Money(v.Cart.Total),
		CreatedAt: v.Cart.CreatedAt,
		UpdatedAt: v.Cart.UpdatedAt,
	}
}

func fromOrderItems(items []domain.OrderItem) []OrderItem {
	result := make([]OrderItem, 0, len(items))
	for _, item := range items {
		result = append(result, OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     Money(item.Price),
			Quantity:  item.Quantity,
		})
	}
	return result
}

// FromOrder конвертирует заказ.
func FromOrder(o domain.Order) Order {
	return Order{
		OrderNumber:   o.OrderNumber,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Items:         fromOrderItems(o.Items),
		Total:         Money(o.Total),
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
	}
}

// FromOrders конвертирует список заказов.
func FromOrders(orders []domain.Order) []Order {
	result := make([]Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, FromOrder(o))
	}
	return result
}

// FromReceipt конвертирует чек. Время сериализуется в RFC 3339.
func FromReceipt(r domain.Receipt) Receipt {
	return Receipt{
		OrderNumber:       r.OrderNumber,
		CustomerName:      r.CustomerName,
		CustomerEmail:     r.CustomerEmail,
		Items:             fromOrderItems(r.Items),
		Subtotal:          Money(r.Subtotal),
		Tax:               Money(r.Tax),
		Total:             Money(r.Total),
		Timestamp:         r.Timestamp.UTC().Format(time.RFC3339),
		Status:            string(r.Status),
		EstimatedDelivery: r.EstimatedDelivery.UTC().Format(time.RFC3339),
	}
}

// FromCheckout конвертирует результат оформления.
func FromCheckout(result checkout.Result) CheckoutResult {
	return CheckoutResult{
		Order:   FromOrder(result.Order),
		Receipt: FromReceipt(result.Receipt),
	}
}

// PublicMessage возвращает текст ошибки, который можно показать клиенту.
// Неклассифицированные ошибки скрываются за InternalErrorMessage.
func PublicMessage(err error) string {
	if message, ok := domain.UserMessage(err); ok {
		return message
	}
	return InternalErrorMessage
}
