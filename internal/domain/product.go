package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product — запись каталога. После загрузки каталога не изменяется.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Description string
	Image       string
	Category    string
	InStock     bool
	// Rating — оценка от 0 до 5.
	Rating    float64
	CreatedAt time.Time
}

// Validate проверяет поля товара перед загрузкой в каталог.
func (p Product) Validate() error {
	switch {
	case p.ID == "":
		return newError(ErrInvalidArgument, "product id is required")
	case p.Name == "":
		return newError(ErrInvalidArgument, "product name is required")
	case p.Price.IsNegative():
		return newError(ErrInvalidArgument, "product price must be non-negative")
	case p.Rating < 0 || p.Rating > 5:
		return newError(ErrInvalidArgument, "product rating must be between 0 and 5")
	}
	return nil
}
