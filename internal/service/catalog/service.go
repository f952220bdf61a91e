package catalog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service — чтение каталога и его первичное наполнение.
type Service struct {
	repo   domain.ProductRepository
	logger *log.Entry
	now    func() time.Time

	seedMu sync.Mutex
}

// NewService создаёт сервис каталога.
func NewService(repo domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ListInStock возвращает товары, доступные к покупке.
func (s *Service) ListInStock() ([]domain.Product, error) {
	products, err := s.repo.ListInStock()
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// GetByID возвращает товар или ErrProductNotFound.
func (s *Service) GetByID(id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return s.repo.Get(id)
}

// SeedDefaults наполняет каталог товарами по умолчанию, если он пуст,
// и возвращает количество добавленных товаров.
func (s *Service) SeedDefaults() (int, error) {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()

	count, err := s.repo.Count()
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	if count > 0 {
		s.logger.WithField("products", count).Debug("catalog already populated")
		return 0, nil
	}

	// Сдвиг по времени сохраняет порядок сидирования в ListInStock.
	base := s.now()
	inserted := 0
	for i, product := range DefaultProducts() {
		product.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		if err := s.repo.Upsert(product); err != nil {
			return inserted, fmt.Errorf("seed product %s: %w", product.ID, err)
		}
		inserted++
	}

	s.logger.WithField("products", inserted).Info("default catalog seeded")
	return inserted, nil
}
