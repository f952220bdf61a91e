package cart

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func loggerForTests() *log.Entry {
	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	return logger.WithField("component", "cart-test")
}

type fixture struct {
	svc      *Service
	carts    domain.CartRepository
	products domain.ProductRepository
	now      time.Time
}

func newFixture(t *testing.T, options ...Option) *fixture {
	t.Helper()

	f := &fixture{
		carts:    memory.NewCartRepository(),
		products: memory.NewProductRepository(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.products.Upsert(domain.Product{
		ID: "prod-1", Name: "Headphones", Price: decimal.RequireFromString("79.99"), InStock: true, Rating: 4.5,
	}))
	require.NoError(t, f.products.Upsert(domain.Product{
		ID: "prod-2", Name: "Watch", Price: decimal.RequireFromString("199.99"), InStock: true, Rating: 4.8,
	}))

	seq := 0
	var mu sync.Mutex
	base := []Option{
		WithLogger(loggerForTests()),
		WithClock(func() time.Time { return f.now }),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("line-%d", seq)
		}),
	}
	f.svc = NewService(f.carts, f.products, append(base, options...)...)
	return f
}

func TestService_GetCreatesEmptyCart(t *testing.T) {
	f := newFixture(t)

	view, err := f.svc.Get("")
	require.NoError(t, err)
	require.Equal(t, domain.GuestUserID, view.Cart.UserID)
	require.Zero(t, view.ItemCount())
	require.True(t, view.Cart.Total.IsZero())

	stored, err := f.carts.Get(domain.GuestUserID)
	require.NoError(t, err)
	require.True(t, stored.IsEmpty())
}

func TestService_AddItemMergesSameProduct(t *testing.T) {
	f := newFixture(t)

	view, err := f.svc.AddItem("u1", "prod-1", 1)
	require.NoError(t, err)
	require.Equal(t, 1, view.ItemCount())
	require.Equal(t, "line-1", view.Lines[0].ID)

	view, err = f.svc.AddItem("u1", "prod-1", 2)
	require.NoError(t, err)
	require.Equal(t, 1, view.ItemCount())
	require.Equal(t, 3, view.Lines[0].Quantity)
	require.Equal(t, "239.97", view.Cart.Total.StringFixed(2))
	require.NotNil(t, view.Lines[0].Product)
	require.Equal(t, "Headphones", view.Lines[0].Product.Name)

	view, err = f.svc.AddItem("u1", "prod-2", 1)
	require.NoError(t, err)
	require.Equal(t, 2, view.ItemCount())
	require.Equal(t, "439.96", view.Cart.Total.StringFixed(2))
}

func TestService_AddItemKeepsSnapshotPrice(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddItem("u1", "prod-1", 1)
	require.NoError(t, err)

	require.NoError(t, f.products.Upsert(domain.Product{
		ID: "prod-1", Name: "Headphones", Price: decimal.RequireFromString("99.99"), InStock: true,
	}))

	view, err := f.svc.AddItem("u1", "prod-1", 1)
	require.NoError(t, err)
	require.Equal(t, "79.99", view.Lines[0].Price.StringFixed(2))
	require.Equal(t, "159.98", view.Cart.Total.StringFixed(2))
}

func TestService_AddItemValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddItem("u1", " ", 1)
	require.ErrorIs(t, err, domain.ErrProductIDRequired)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.AddItem("u1", "prod-1", 0)
	require.ErrorIs(t, err, domain.ErrQuantityInvalid)

	_, err = f.svc.AddItem("u1", "prod-404", 1)
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = f.carts.Get("u1")
	require.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestService_UpdateAndRemove(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateItemQuantity("u1", "line-1", 2)
	require.ErrorIs(t, err, domain.ErrCartNotFound)

	_, err = f.svc.AddItem("u1", "prod-1", 1)
	require.NoError(t, err)

	view, err := f.svc.UpdateItemQuantity("u1", "line-1", 5)
	require.NoError(t, err)
	require.Equal(t, 5, view.Lines[0].Quantity)
	require.Equal(t, "399.95", view.Cart.Total.StringFixed(2))

	for _, bad := range []int{0, -1, domain.MaxQuantity + 1} {
		_, err = f.svc.UpdateItemQuantity("u1", "line-1", bad)
		require.ErrorIs(t, err, domain.ErrQuantityInvalid, "quantity %d", bad)
	}

	view, err = f.svc.Get("u1")
	require.NoError(t, err)
	require.Equal(t, 5, view.Lines[0].Quantity)
	require.Equal(t, "399.95", view.Cart.Total.StringFixed(2))

	_, err = f.svc.UpdateItemQuantity("u1", "line-404", 1)
	require.ErrorIs(t, err, domain.ErrCartItemNotFound)

	_, err = f.svc.RemoveItem("u1", "line-404")
	require.ErrorIs(t, err, domain.ErrCartItemNotFound)

	view, err = f.svc.RemoveItem("u1", "line-1")
	require.NoError(t, err)
	require.Zero(t, view.ItemCount())
	require.True(t, view.Cart.Total.IsZero())
}

func TestService_Clear(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Clear("u1")
	require.ErrorIs(t, err, domain.ErrCartNotFound)

	_, err = f.svc.AddItem("u1", "prod-1", 2)
	require.NoError(t, err)

	view, err := f.svc.Clear("u1")
	require.NoError(t, err)
	require.Zero(t, view.ItemCount())
	require.True(t, view.Cart.Total.IsZero())

	view, err = f.svc.Clear("u1")
	require.NoError(t, err)
	require.Zero(t, view.ItemCount())
	require.True(t, view.Cart.Total.IsZero())

	stored, err := f.carts.Get("u1")
	require.NoError(t, err)
	require.True(t, stored.IsEmpty())
	require.True(t, stored.Total.IsZero())
}

func TestService_AddItemRejectsQuantityOverflow(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddItem("u1", "prod-1", domain.MaxQuantity+1)
	require.ErrorIs(t, err, domain.ErrQuantityInvalid)

	_, err = f.svc.AddItem("u1", "prod-1", domain.MaxQuantity)
	require.NoError(t, err)

	_, err = f.svc.AddItem("u1", "prod-1", 2)
	require.ErrorIs(t, err, domain.ErrQuantityInvalid)

	view, err := f.svc.Get("u1")
	require.NoError(t, err)
	require.Equal(t, domain.MaxQuantity, view.Lines[0].Quantity)
	require.False(t, view.Cart.Total.IsNegative())
	requireTotalMatchesLines(t, view.Cart)
}

func TestService_TotalFollowsEveryMutation(t *testing.T) {
	f := newFixture(t)

	steps := []struct {
		name string
		run  func() (View, error)
		want string
	}{
		{"add headphones", func() (View, error) { return f.svc.AddItem("u1", "prod-1", 2) }, "159.98"},
		{"add watch", func() (View, error) { return f.svc.AddItem("u1", "prod-2", 1) }, "359.97"},
		{"merge headphones", func() (View, error) { return f.svc.AddItem("u1", "prod-1", 1) }, "439.96"},
		{"update watch", func() (View, error) { return f.svc.UpdateItemQuantity("u1", "line-2", 3) }, "839.94"},
		{"remove headphones", func() (View, error) { return f.svc.RemoveItem("u1", "line-1") }, "599.97"},
		{"re-add headphones", func() (View, error) { return f.svc.AddItem("u1", "prod-1", 1) }, "679.96"},
		{"clear", func() (View, error) { return f.svc.Clear("u1") }, "0.00"},
	}

	for _, step := range steps {
		view, err := step.run()
		require.NoError(t, err, step.name)
		require.Equal(t, step.want, view.Cart.Total.StringFixed(2), step.name)
		requireTotalMatchesLines(t, view.Cart)

		stored, err := f.carts.Get("u1")
		require.NoError(t, err, step.name)
		requireTotalMatchesLines(t, stored)
	}
}

func requireTotalMatchesLines(t *testing.T, cart domain.Cart) {
	t.Helper()
	sum := decimal.Zero
	for _, line := range cart.Lines {
		require.GreaterOrEqual(t, line.Quantity, 1)
		sum = sum.Add(line.Subtotal())
	}
	require.True(t, sum.Equal(cart.Total), "total %s != sum of subtotals %s", cart.Total, sum)
}

func TestService_ViewToleratesRemovedProduct(t *testing.T) {
	f := newFixture(t)

	cart := domain.NewCart("u1", f.now)
	_, err := cart.AddProduct("line-x", domain.Product{ID: "gone", Price: decimal.NewFromInt(3)}, 1, f.now)
	require.NoError(t, err)
	require.NoError(t, f.carts.Create(cart))

	view, err := f.svc.Get("u1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	require.Nil(t, view.Lines[0].Product)
	require.Equal(t, "3.00", view.Cart.Total.StringFixed(2))
}

func TestService_DrainClaimsCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddItem("u1", "prod-1", 2)
	require.NoError(t, err)

	var consumed domain.Cart
	err = f.svc.Drain("u1", func(snapshot domain.Cart) error {
		consumed = snapshot
		stored, getErr := f.carts.Get("u1")
		require.NoError(t, getErr)
		require.True(t, stored.IsEmpty())
		return nil
	})
	require.NoError(t, err)
	require.Len(t, consumed.Lines, 1)
	require.Equal(t, 2, consumed.Lines[0].Quantity)

	err = f.svc.Drain("u1", func(domain.Cart) error {
		t.Fatal("consume must not be called for an empty cart")
		return nil
	})
	require.ErrorIs(t, err, domain.ErrCartIsEmpty)
}

func TestService_DrainMissingCart(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Drain("nobody", func(domain.Cart) error { return nil })
	require.ErrorIs(t, err, domain.ErrEmptyCart)
}

func TestService_DrainRestoresCartOnFailure(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddItem("u1", "prod-1", 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem("u1", "prod-2", 3)
	require.NoError(t, err)

	consumeErr := errors.New("ledger unavailable")
	err = f.svc.Drain("u1", func(domain.Cart) error { return consumeErr })
	require.ErrorIs(t, err, consumeErr)

	view, err := f.svc.Get("u1")
	require.NoError(t, err)
	require.Equal(t, 2, view.ItemCount())
	require.Equal(t, "679.96", view.Cart.Total.StringFixed(2))
}

func TestService_ConcurrentAddsAreSerialized(t *testing.T) {
	f := newFixture(t)

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AddItem("u1", "prod-1", 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := f.svc.Get("u1")
	require.NoError(t, err)
	require.Equal(t, 1, view.ItemCount())
	require.Equal(t, workers, view.Lines[0].Quantity)
	require.Zero(t, f.svc.locks.size())
}

func TestService_RecordsCartMutations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewStorefrontMetricsWithRegisterer(reg)
	f := newFixture(t, WithMetrics(m))

	_, err := f.svc.AddItem("u1", "prod-1", 1)
	require.NoError(t, err)
	_, err = f.svc.UpdateItemQuantity("u1", "line-1", 4)
	require.NoError(t, err)
	_, err = f.svc.Clear("u1")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	byOp := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "storefront_cart_mutations_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "op" {
					byOp[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	require.Equal(t, map[string]float64{"add": 1, "update": 1, "clear": 1}, byOp)
}
