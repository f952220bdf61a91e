package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const imageParams = "?w=200&h=150&fit=crop&auto=format&q=75"

type seedProduct struct {
	id, name, price, description, image, category string
	rating                                         float64
}

var defaultCatalog = []seedProduct{
	{"prod-1", "Wireless Bluetooth Headphones", "79.99", "High-quality wireless headphones with noise cancellation", "photo-1505740420928-5e560c06d30e", "Electronics", 4.5},
	{"prod-2", "Smart Fitness Watch", "199.99", "Track your fitness goals with this advanced smartwatch", "photo-1523275335684-37898b6baf30", "Electronics", 4.3},
	{"prod-3", "Premium Coffee Beans", "24.99", "Freshly roasted premium arabica coffee beans", "photo-1447933601403-0c6688de566e", "Food & Beverage", 4.8},
	{"prod-4", "Organic Cotton T-Shirt", "29.99", "Comfortable and sustainable organic cotton t-shirt", "photo-1521572163474-6864f9cf17ab", "Clothing", 4.2},
	{"prod-5", "Wireless Phone Charger", "39.99", "Fast wireless charging pad for smartphones", "photo-1609091839311-d5365f9ff1c5", "Electronics", 4.4},
	{"prod-6", "Yoga Mat", "49.99", "Non-slip eco-friendly yoga mat for your practice", "photo-1544367567-0f2fcb009e0b", "Sports & Fitness", 4.6},
	{"prod-7", "Stainless Steel Water Bottle", "34.99", "Insulated water bottle that keeps drinks cold for 24 hours", "photo-1602143407151-7111542de6e8", "Lifestyle", 4.7},
	{"prod-8", "LED Desk Lamp", "59.99", "Adjustable LED desk lamp with multiple brightness levels", "photo-1507003211169-0a1dd7228f2d", "Home & Office", 4.1},
}

// DefaultProducts возвращает стартовый каталог из восьми товаров.
func DefaultProducts() []domain.Product {
	products := make([]domain.Product, 0, len(defaultCatalog))
	for _, p := range defaultCatalog {
		products = append(products, domain.Product{
			ID:          p.id,
			Name:        p.name,
			Price:       decimal.RequireFromString(p.price),
			Description: p.description,
			Image:       "https://images.unsplash.com/" + p.image + imageParams,
			Category:    p.category,
			InStock:     true,
			Rating:      p.rating,
		})
	}
	return products
}
