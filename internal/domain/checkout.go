package domain

import "github.com/shopspring/decimal"

// UnknownProductName подставляется, когда у позиции нет названия.
const UnknownProductName = "Unknown Product"

// CheckoutItem поступает в оформление заказа.
// Реализации: ResolvedItem и FrozenItem.
type CheckoutItem interface {
	checkoutItem()
}

// ResolvedItem — позиция со ссылкой на товар каталога; цена берётся из товара.
type ResolvedItem struct {
	Product  Product
	Quantity int
}

// FrozenItem — позиция с уже зафиксированной ценой (снимок корзины или данные клиента).
type FrozenItem struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

func (ResolvedItem) checkoutItem() {}
func (FrozenItem) checkoutItem()   {}

// FreezeItem превращает позицию оформления в неизменяемую позицию заказа.
func FreezeItem(item CheckoutItem) OrderItem {
	switch it := item.(type) {
	case ResolvedItem:
		return OrderItem{
			ProductID: it.Product.ID,
			Name:      nameOrUnknown(it.Product.Name),
			Price:     it.Product.Price,
			Quantity:  it.Quantity,
		}
	case FrozenItem:
		return OrderItem{
			ProductID: it.ProductID,
			Name:      nameOrUnknown(it.Name),
			Price:     it.Price,
			Quantity:  it.Quantity,
		}
	default:
		panic("domain: unsupported checkout item type")
	}
}

// FreezeItems применяет FreezeItem ко всем позициям.
func FreezeItems(items []CheckoutItem) []OrderItem {
	result := make([]OrderItem, 0, len(items))
	for _, item := range items {
		result = append(result, FreezeItem(item))
	}
	return result
}

func nameOrUnknown(name string) string {
	if name == "" {
		return UnknownProductName
	}
	return name
}
