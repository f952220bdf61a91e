package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GuestUserID — идентификатор пользователя по умолчанию для однопользовательского режима.
const GuestUserID = "guest"

// MaxQuantity ограничивает количество в позиции: столбцы quantity в PostgreSQL имеют тип INT.
const MaxQuantity = math.MaxInt32

// ValidQuantity сообщает, лежит ли quantity в диапазоне 1..MaxQuantity.
func ValidQuantity(quantity int) bool {
	return quantity >= 1 && quantity <= MaxQuantity
}

// NormalizeUserID подставляет гостя для пустого идентификатора.
func NormalizeUserID(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return GuestUserID
	}
	return userID
}

// CartLine — позиция корзины с ценой, зафиксированной в момент добавления.
type CartLine struct {
	ID        string
	ProductID string
	Quantity  int
	Price     decimal.Decimal
	AddedAt   time.Time
}

// Subtotal возвращает price * quantity для позиции.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart агрегирует позиции пользователя и поддерживает итог в согласованном состоянии.
type Cart struct {
	UserID string
	Lines  []CartLine
	// Total всегда равен сумме Subtotal по Lines; пересчитывается после каждой мутации.
	Total decimal.Decimal
	// Version используется для optimistic locking при сохранении.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCart создаёт пустую корзину пользователя.
func NewCart(userID string, now time.Time) Cart {
	return Cart{
		UserID:    NormalizeUserID(userID),
		Lines:     []CartLine{},
		Total:     decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Recalculate пересчитывает Total по текущим позициям.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.Subtotal())
	}
	c.Total = total
}

// AddProduct добавляет товар в корзину. Если позиция с этим товаром уже есть,
// увеличивает её количество; иначе создаёт позицию lineID с текущей ценой товара.
// Слияние, при котором количество превысило бы MaxQuantity, отклоняется без изменений корзины.
func (c *Cart) AddProduct(lineID string, product Product, quantity int, now time.Time) (CartLine, error) {
	if !ValidQuantity(quantity) {
		return CartLine{}, ErrQuantityInvalid
	}

	for i := range c.Lines {
		if c.Lines[i].ProductID == product.ID {
			if quantity > MaxQuantity-c.Lines[i].Quantity {
				return CartLine{}, ErrQuantityInvalid
			}
			c.Lines[i].Quantity += quantity
			c.touch(now)
			return c.Lines[i], nil
		}
	}

	line := CartLine{
		ID:        lineID,
		ProductID: product.ID,
		Quantity:  quantity,
		Price:     product.Price,
		AddedAt:   now,
	}
	c.Lines = append(c.Lines, line)
	c.touch(now)
	return line, nil
}

// SetQuantity задаёт абсолютное количество для позиции.
func (c *Cart) SetQuantity(lineID string, quantity int, now time.Time) error {
	if !ValidQuantity(quantity) {
		return ErrQuantityInvalid
	}
	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrCartItemNotFound
	}
	c.Lines[idx].Quantity = quantity
	c.touch(now)
	return nil
}

// RemoveLine удаляет позицию из корзины.
func (c *Cart) RemoveLine(lineID string, now time.Time) error {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrCartItemNotFound
	}
	c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
	c.touch(now)
	return nil
}

// Clear удаляет все позиции. Повторный вызов на пустой корзине безопасен.
func (c *Cart) Clear(now time.Time) {
	c.Lines = []CartLine{}
	c.touch(now)
}

// IsEmpty сообщает, что в корзине нет позиций.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ItemCount возвращает количество позиций (не единиц товара).
func (c Cart) ItemCount() int {
	return len(c.Lines)
}

// Clone возвращает копию корзины с независимым слайсом позиций.
func (c Cart) Clone() Cart {
	dst := c
	dst.Lines = append([]CartLine(nil), c.Lines...)
	if dst.Lines == nil {
		dst.Lines = []CartLine{}
	}
	return dst
}

func (c *Cart) indexOf(lineID string) int {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

func (c *Cart) touch(now time.Time) {
	c.UpdatedAt = now
	c.Recalculate()
}
