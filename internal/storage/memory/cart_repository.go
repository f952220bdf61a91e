package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// cartRepositoryInMemory — in-memory хранилище корзин с optimistic locking.
type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Cart
}

// NewCartRepository возвращает in-memory репозиторий корзин.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{items: make(map[string]domain.Cart)}
}

// Get возвращает копию корзины или ErrCartNotFound.
func (r *cartRepositoryInMemory) Get(userID string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.items[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart.Clone(), nil
}

// Create сохраняет новую корзину, если у пользователя её ещё нет.
func (r *cartRepositoryInMemory) Create(cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[cart.UserID]; exists {
		return domain.ErrCartAlreadyExists
	}
	r.items[cart.UserID] = cart.Clone()
	return nil
}

// Save перезаписывает корзину, проверяя версию (optimistic locking).
func (r *cartRepositoryInMemory) Save(cart domain.Cart) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[cart.UserID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	if current.Version != cart.Version {
		return domain.Cart{}, domain.ErrCartVersionConflict
	}

	saved := cart.Clone()
	saved.Version++
	r.items[cart.UserID] = saved
	return saved.Clone(), nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
