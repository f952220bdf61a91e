package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// RouterConfig задаёт параметры HTTP-слоя.
type RouterConfig struct {
	// AllowedOrigins — список origin для CORS; "*" разрешает любой.
	AllowedOrigins []string
	Logger         *log.Entry
}

// NewRouter собирает chi-роутер REST API.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = h.logger
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationID)
	r.Use(AccessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	r.Get("/", h.Root)
	r.Post("/api/init-products", h.InitProducts)

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
	})

	r.Route("/api/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/", h.AddCartItem)
		r.Delete("/", h.ClearCart)
		r.Put("/{id}", h.UpdateCartItem)
		r.Delete("/{id}", h.RemoveCartItem)
	})

	r.Route("/api/checkout", func(r chi.Router) {
		r.Post("/", h.Checkout)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{orderNumber}", h.GetOrder)
	})

	return r
}
