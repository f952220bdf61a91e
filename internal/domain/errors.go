package domain

import "errors"

// Категории ошибок. Транспорты (HTTP/gRPC) маппят ответы по ним через errors.Is.
var (
	// ErrInvalidArgument — некорректный или отсутствующий ввод клиента.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound — запрошенная сущность отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrEmptyCart — попытка оформить заказ без позиций.
	ErrEmptyCart = errors.New("empty cart")
	// ErrConflict — нарушение уникальности или конфликт версий.
	ErrConflict = errors.New("conflict")
)

// categorizedError несёт пользовательское сообщение и категорию для errors.Is.
type categorizedError struct {
	category error
	message  string
}

func (e *categorizedError) Error() string { return e.message }

func (e *categorizedError) Unwrap() error { return e.category }

func newError(category error, message string) error {
	return &categorizedError{category: category, message: message}
}

var (
	// ErrProductIDRequired — в запросе на добавление не указан productId.
	ErrProductIDRequired = newError(ErrInvalidArgument, "Product ID is required")
	// ErrQuantityInvalid — количество вне диапазона 1..MaxQuantity.
	ErrQuantityInvalid = newError(ErrInvalidArgument, "Valid quantity is required")
	// ErrCustomerRequired — не заполнены имя или email покупателя.
	ErrCustomerRequired = newError(ErrInvalidArgument, "Customer name and email are required")
	// ErrEmailInvalid — email без символа "@".
	ErrEmailInvalid = newError(ErrInvalidArgument, "Please provide a valid email address")
	// ErrItemPriceInvalid — позиция без цены, с отрицательной ценой или ценой точнее копейки.
	ErrItemPriceInvalid = newError(ErrInvalidArgument, "Item price must be a non-negative amount with at most 2 decimal places")

	// ErrProductNotFound возвращается, если товар отсутствует в каталоге.
	ErrProductNotFound = newError(ErrNotFound, "Product not found")
	// ErrCartNotFound возвращается, если корзина пользователя ещё не создана.
	ErrCartNotFound = newError(ErrNotFound, "Cart not found")
	// ErrCartItemNotFound возвращается, если позиции нет в корзине.
	ErrCartItemNotFound = newError(ErrNotFound, "Item not found in cart")
	// ErrOrderNotFound возвращается, если заказ не найден в журнале.
	ErrOrderNotFound = newError(ErrNotFound, "Order not found")

	// ErrCartIsEmpty — корзина пуста и явные позиции не переданы.
	ErrCartIsEmpty = newError(ErrEmptyCart, "Cart is empty")

	// ErrCartAlreadyExists — повторное создание корзины для пользователя.
	ErrCartAlreadyExists = newError(ErrConflict, "Cart already exists")
	// ErrCartVersionConflict — корзина изменилась между чтением и сохранением.
	ErrCartVersionConflict = newError(ErrConflict, "Cart was modified concurrently")
	// ErrOrderNumberTaken — номер заказа уже занят в журнале.
	ErrOrderNumberTaken = newError(ErrConflict, "Order number already exists")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — ключ отсутствует в хранилище.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// IsConflict проверяет, относится ли ошибка к конфликтам уникальности/версий.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// UserMessage возвращает пользовательский текст доменной ошибки из цепочки обёрток.
func UserMessage(err error) (string, bool) {
	var ce *categorizedError
	if errors.As(err, &ce) {
		return ce.message, true
	}
	return "", false
}
