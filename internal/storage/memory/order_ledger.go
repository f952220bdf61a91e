package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderLedgerInMemory — журнал заказов только на добавление.
type orderLedgerInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderLedger возвращает in-memory журнал заказов для локальной разработки и тестов.
func NewOrderLedger() domain.OrderLedger {
	return &orderLedgerInMemory{items: make(map[string]domain.Order)}
}

// Save добавляет заказ, если номер ещё не занят.
func (r *orderLedgerInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.OrderNumber]; exists {
		return domain.ErrOrderNumberTaken
	}
	r.items[order.OrderNumber] = order.Clone()
	return nil
}

// ListRecent возвращает заказы от новых к старым, ограничивая выборку limit (если >0).
func (r *orderLedgerInMemory) ListRecent(limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		result = append(result, order.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].OrderNumber > result[j].OrderNumber
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetByOrderNumber возвращает заказ или ErrOrderNotFound.
func (r *orderLedgerInMemory) GetByOrderNumber(orderNumber string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[orderNumber]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

var _ domain.OrderLedger = (*orderLedgerInMemory)(nil)
