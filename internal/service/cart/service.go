package cart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Операции для метрики cart mutations.
const (
	opAdd    = "add"
	opUpdate = "update"
	opRemove = "remove"
	opClear  = "clear"
	opDrain  = "drain"
)

// LineView объединяет позицию корзины с актуальной карточкой товара.
// Product равен nil, если товар исчез из каталога.
type LineView struct {
	domain.CartLine
	Product *domain.Product
}

// View готовит корзину к отдаче клиенту.
type View struct {
	Cart  domain.Cart
	Lines []LineView
}

// ItemCount возвращает количество позиций.
func (v View) ItemCount() int {
	return len(v.Lines)
}

// Service управляет корзинами пользователей.
type Service struct {
	carts    domain.CartRepository
	products domain.ProductRepository
	logger   *log.Entry
	metrics  *metrics.StorefrontMetrics
	locks    *userLocks
	now      func() time.Time
	newID    func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт бизнес-метрики.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов позиций.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService создаёт сервис корзин.
func NewService(carts domain.CartRepository, products domain.ProductRepository, options ...Option) *Service {
	s := &Service{
		carts:    carts,
		products: products,
		logger:   log.WithField("component", "cart"),
		locks:    newUserLocks(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Get возвращает корзину пользователя, создавая пустую при первом обращении.
func (s *Service) Get(userID string) (View, error) {
	userID = domain.NormalizeUserID(userID)
	unlock := s.locks.lock(userID)
	defer unlock()

	cart, err := s.loadOrCreate(userID)
	if err != nil {
		return View{}, err
	}
	return s.view(cart), nil
}

// AddItem добавляет товар в корзину или увеличивает количество существующей позиции.
func (s *Service) AddItem(userID, productID string, quantity int) (View, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return View{}, domain.ErrProductIDRequired
	}
	if !domain.ValidQuantity(quantity) {
		return View{}, domain.ErrQuantityInvalid
	}

	product, err := s.products.Get(productID)
	if err != nil {
		return View{}, err
	}

	userID = domain.NormalizeUserID(userID)
	unlock := s.locks.lock(userID)
	defer unlock()

	cart, err := s.loadOrCreate(userID)
	if err != nil {
		return View{}, err
	}
	if _, err := cart.AddProduct(s.newID(), product, quantity, s.now()); err != nil {
		return View{}, err
	}
	return s.save(cart, opAdd)
}

// UpdateItemQuantity задаёт абсолютное количество для позиции.
func (s *Service) UpdateItemQuantity(userID, lineID string, quantity int) (View, error) {
	if !domain.ValidQuantity(quantity) {
		return View{}, domain.ErrQuantityInvalid
	}
	return s.mutate(userID, opUpdate, func(cart *domain.Cart) error {
		return cart.SetQuantity(lineID, quantity, s.now())
	})
}

// RemoveItem удаляет позицию из корзины.
func (s *Service) RemoveItem(userID, lineID string) (View, error) {
	return s.mutate(userID, opRemove, func(cart *domain.Cart) error {
		return cart.RemoveLine(lineID, s.now())
	})
}

// Clear очищает корзину. Для отсутствующей корзины возвращает ErrCartNotFound.
func (s *Service) Clear(userID string) (View, error) {
	return s.mutate(userID, opClear, func(cart *domain.Cart) error {
		cart.Clear(s.now())
		return nil
	})
}

// Drain атомарно забирает содержимое корзины для оформления заказа.
// Корзина очищается до вызова consume (compare-and-swap по версии), поэтому
// один и тот же снимок не может быть оформлен дважды. Если consume вернул
// ошибку, позиции снимка возвращаются в корзину.
func (s *Service) Drain(userID string, consume func(snapshot domain.Cart) error) error {
	userID = domain.NormalizeUserID(userID)
	unlock := s.locks.lock(userID)
	defer unlock()

	snapshot, err := s.carts.Get(userID)
	if err != nil {
		if errors.Is(err, domain.ErrCartNotFound) {
			return domain.ErrCartIsEmpty
		}
		return fmt.Errorf("load cart: %w", err)
	}
	if snapshot.IsEmpty() {
		return domain.ErrCartIsEmpty
	}

	claimed := snapshot.Clone()
	claimed.Clear(s.now())
	claimed, err = s.carts.Save(claimed)
	if err != nil {
		return fmt.Errorf("claim cart: %w", err)
	}

	if err := consume(snapshot.Clone()); err != nil {
		restored := claimed.Clone()
		restored.Lines = snapshot.Clone().Lines
		restored.Recalculate()
		if _, restoreErr := s.carts.Save(restored); restoreErr != nil {
			s.logger.WithError(restoreErr).WithField("user_id", userID).Error("failed to restore cart after checkout error")
		}
		return err
	}

	s.metrics.RecordCartMutation(opDrain)
	return nil
}

func (s *Service) mutate(userID, op string, fn func(cart *domain.Cart) error) (View, error) {
	userID = domain.NormalizeUserID(userID)
	unlock := s.locks.lock(userID)
	defer unlock()

	cart, err := s.carts.Get(userID)
	if err != nil {
		return View{}, err
	}
	if err := fn(&cart); err != nil {
		return View{}, err
	}
	return s.save(cart, op)
}

func (s *Service) save(cart domain.Cart, op string) (View, error) {
	saved, err := s.carts.Save(cart)
	if err != nil {
		return View{}, fmt.Errorf("save cart: %w", err)
	}
	s.metrics.RecordCartMutation(op)
	return s.view(saved), nil
}

func (s *Service) loadOrCreate(userID string) (domain.Cart, error) {
	cart, err := s.carts.Get(userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrCartNotFound) {
		return domain.Cart{}, fmt.Errorf("load cart: %w", err)
	}

	cart = domain.NewCart(userID, s.now())
	if err := s.carts.Create(cart); err != nil {
		// Корзину мог создать другой инстанс сервиса.
		if errors.Is(err, domain.ErrCartAlreadyExists) {
			return s.carts.Get(userID)
		}
		return domain.Cart{}, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}

func (s *Service) view(cart domain.Cart) View {
	v := View{Cart: cart, Lines: make([]LineView, 0, len(cart.Lines))}
	for _, line := range cart.Lines {
		lv := LineView{CartLine: line}
		if product, err := s.products.Get(line.ProductID); err == nil {
			lv.Product = &product
		} else if !errors.Is(err, domain.ErrProductNotFound) {
			s.logger.WithError(err).WithField("product_id", line.ProductID).Warn("failed to resolve cart product")
		}
		v.Lines = append(v.Lines, lv)
	}
	return v
}
