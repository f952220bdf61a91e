package dto

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

// AddItemRequest разбирается из тела POST /api/cart. Quantity по умолчанию равен 1.
type AddItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity,omitempty"`
}

// QuantityOrDefault возвращает количество с учётом значения по умолчанию.
func (r AddItemRequest) QuantityOrDefault() int {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

// UpdateItemRequest разбирается из тела PUT /api/cart/{id}.
type UpdateItemRequest struct {
	Quantity *int `json:"quantity"`
}

// Validate требует явное количество в диапазоне 1..domain.MaxQuantity.
func (r UpdateItemRequest) Validate() (int, error) {
	if r.Quantity == nil || !domain.ValidQuantity(*r.Quantity) {
		return 0, domain.ErrQuantityInvalid
	}
	return *r.Quantity, nil
}

// CheckoutItemRequest задаёт явную позицию оформления.
type CheckoutItemRequest struct {
	ProductID string           `json:"productId,omitempty"`
	Name      string           `json:"name,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Quantity  *int             `json:"quantity,omitempty"`
}

// CheckoutRequest разбирается из тела POST /api/checkout.
type CheckoutRequest struct {
	CustomerName  string                `json:"customerName"`
	CustomerEmail string                `json:"customerEmail"`
	CartItems     []CheckoutItemRequest `json:"cartItems,omitempty"`
}

// ToCheckout переводит запрос в модель процессора. Количество по умолчанию равно 1.
func (r CheckoutRequest) ToCheckout(userID string) checkout.Request {
	req := checkout.Request{
		UserID:        userID,
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail,
	}
	for _, item := range r.CartItems {
		quantity := 1
		if item.Quantity != nil {
			quantity = *item.Quantity
		}
		req.Items = append(req.Items, checkout.ItemRequest{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  quantity,
		})
	}
	return req
}
