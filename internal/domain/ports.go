package domain

import "time"

// ProductRepository хранит каталог товаров.
type ProductRepository interface {
	// ListInStock возвращает товары с InStock=true.
	ListInStock() ([]Product, error)
	// Get возвращает товар или ErrProductNotFound.
	Get(id string) (Product, error)
	// Count возвращает количество товаров в каталоге.
	Count() (int, error)
	// Upsert создаёт или перезаписывает товар.
	Upsert(product Product) error
}

// CartRepository хранит корзины пользователей.
type CartRepository interface {
	// Get возвращает корзину или ErrCartNotFound.
	Get(userID string) (Cart, error)
	// Create сохраняет новую корзину; ErrCartAlreadyExists, если она уже есть.
	Create(cart Cart) error
	// Save перезаписывает корзину, если её версия совпадает с сохранённой
	// (optimistic locking), и увеличивает версию. Возвращает сохранённую корзину.
	Save(cart Cart) (Cart, error)
}

// OrderLedger — журнал оформленных заказов (только добавление).
type OrderLedger interface {
	// Save сохраняет заказ; ErrOrderNumberTaken при дубликате номера.
	Save(order Order) error
	// ListRecent возвращает заказы от новых к старым, не более limit.
	ListRecent(limit int) ([]Order, error)
	// GetByOrderNumber возвращает заказ или ErrOrderNotFound.
	GetByOrderNumber(orderNumber string) (Order, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, statusCode int) error
	MarkFailed(key string, responseBody []byte, statusCode int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
