package memory_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newOrder(number string, createdAt time.Time) domain.Order {
	items := []domain.OrderItem{{ProductID: "1", Name: "Headphones", Price: decimal.RequireFromString("99.99"), Quantity: 1}}
	return domain.Order{
		OrderNumber:   number,
		CustomerName:  "Jane",
		CustomerEmail: "jane@example.com",
		Items:         items,
		Total:         domain.SumItems(items),
		Status:        domain.OrderStatusConfirmed,
		CreatedAt:     createdAt,
	}
}

func TestProductRepository_ListInStock(t *testing.T) {
	repo := memory.NewProductRepository()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "2", Name: "Watch", Price: decimal.NewFromInt(199), InStock: true, CreatedAt: now},
		{ID: "1", Name: "Headphones", Price: decimal.NewFromInt(99), InStock: true, CreatedAt: now},
		{ID: "3", Name: "Sold out", Price: decimal.NewFromInt(5), InStock: false, CreatedAt: now},
	}
	for _, p := range products {
		if err := repo.Upsert(p); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	list, err := repo.ListInStock()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "1" || list[1].ID != "2" {
		t.Fatalf("unexpected list: %+v", list)
	}

	count, err := repo.Count()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 products, got %d", count)
	}

	if _, err := repo.Get("404"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if err := repo.Upsert(domain.Product{ID: "bad"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCartRepository_CreateSaveVersioning(t *testing.T) {
	repo := memory.NewCartRepository()
	now := time.Now().UTC()
	cart := domain.NewCart("user-1", now)

	if _, err := repo.Get("user-1"); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
	if err := repo.Create(cart); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(cart); !errors.Is(err, domain.ErrCartAlreadyExists) {
		t.Fatalf("expected ErrCartAlreadyExists, got %v", err)
	}

	stored, err := repo.Get("user-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if _, err := stored.AddProduct("line-1", domain.Product{ID: "1", Price: decimal.NewFromInt(10)}, 2, now); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	saved, err := repo.Save(stored)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.Version != stored.Version+1 {
		t.Fatalf("expected version %d, got %d", stored.Version+1, saved.Version)
	}

	// Повторное сохранение со старой версией должно конфликтовать.
	if _, err := repo.Save(stored); !errors.Is(err, domain.ErrCartVersionConflict) {
		t.Fatalf("expected ErrCartVersionConflict, got %v", err)
	}
	if _, err := repo.Save(domain.NewCart("ghost", now)); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}

	// Мутация возвращённой копии не влияет на хранилище.
	saved.Lines[0].Quantity = 99
	reloaded, err := repo.Get("user-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if reloaded.Lines[0].Quantity != 2 {
		t.Fatalf("expected stored quantity 2, got %d", reloaded.Lines[0].Quantity)
	}
}

func TestOrderLedger_SaveAndListRecent(t *testing.T) {
	ledger := memory.NewOrderLedger()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		order := newOrder(fmt.Sprintf("ORD00000%d000", i), base.Add(time.Duration(i)*time.Second))
		if err := ledger.Save(order); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	if err := ledger.Save(newOrder("ORD000000000", base)); !errors.Is(err, domain.ErrOrderNumberTaken) {
		t.Fatalf("expected ErrOrderNumberTaken, got %v", err)
	}

	recent, err := ledger.ListRecent(3)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(recent))
	}
	if recent[0].OrderNumber != "ORD000004000" || recent[2].OrderNumber != "ORD000002000" {
		t.Fatalf("unexpected order: %s .. %s", recent[0].OrderNumber, recent[2].OrderNumber)
	}

	got, err := ledger.GetByOrderNumber("ORD000001000")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Total.Equal(decimal.RequireFromString("99.99")) {
		t.Fatalf("unexpected total %s", got.Total)
	}
	if _, err := ledger.GetByOrderNumber("ORD999999999"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
