package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/dto"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

const (
	maxRequestBodyBytes = 1 << 20
	invalidBodyMessage  = "Invalid request body"
)

var errInvalidBody = errors.New("invalid request body")

// Handler обслуживает REST API витрины.
type Handler struct {
	catalog  *catalog.Service
	carts    *cart.Service
	checkout *checkout.Processor
	idem     *idempotency.Guard
	logger   *log.Entry
}

// HandlerOption настраивает Handler.
type HandlerOption func(*Handler)

// WithIdempotency включает поддержку заголовка Idempotency-Key на оформлении заказа.
func WithIdempotency(repo domain.IdempotencyRepository) HandlerOption {
	return func(h *Handler) {
		h.idem = idempotency.NewGuard(repo)
	}
}

// WithLogger задаёт logger обработчиков.
func WithLogger(logger *log.Entry) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler создаёт обработчики REST API.
func NewHandler(catalogSvc *catalog.Service, carts *cart.Service, processor *checkout.Processor, options ...HandlerOption) *Handler {
	h := &Handler{
		catalog:  catalogSvc,
		carts:    carts,
		checkout: processor,
		logger:   log.WithField("component", "http-api"),
	}
	for _, option := range options {
		option(h)
	}
	return h
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(body)
	if err := decoder.Decode(dst); err != nil {
		// Пустое тело равносильно пустому объекту.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errInvalidBody
	}
	return nil
}

func writeInvalidBody(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, dto.Envelope{Success: false, Message: invalidBodyMessage})
}

// Root сообщает, что API запущен.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "API is running"})
}

// NotFound отвечает на неизвестные маршруты.
func (h *Handler) NotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, dto.Envelope{Success: false, Message: "Route not found"})
}

// MethodNotAllowed отвечает на неподдерживаемый метод известного маршрута.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, dto.Envelope{Success: false, Message: "Method not allowed"})
}

// ListProducts возвращает товары в наличии.
func (h *Handler) ListProducts(w http.ResponseWriter, _ *http.Request) {
	products, err := h.catalog.ListInStock()
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch products")
		return
	}
	writeJSON(w, http.StatusOK, dto.Envelope{
		Success: true,
		Data:    dto.FromProducts(products),
		Count:   dto.IntPtr(len(products)),
	})
}

// GetProduct возвращает товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch product")
		return
	}
	writeJSON(w, http.StatusOK, dto.Envelope{Success: true, Data: dto.FromProduct(product)})
}

// InitProducts загружает каталог по умолчанию, если он пуст.
func (h *Handler) InitProducts(w http.ResponseWriter, _ *http.Request) {
	inserted, err := h.catalog.SeedDefaults()
	if err != nil {
		writeError(w, h.logger, err, "Failed to initialize products")
		return
	}
	if inserted == 0 {
		writeJSON(w, http.StatusOK, dto.Envelope{
			Success: true,
			Message: "Products already initialized",
			Count:   dto.IntPtr(0),
		})
		return
	}
	writeJSON(w, http.StatusCreated, dto.Envelope{
		Success: true,
		Message: "Products initialized successfully",
		Count:   dto.IntPtr(inserted),
	})
}

func writeCart(w http.ResponseWriter, status int, message string, view cart.View) {
	writeJSON(w, status, dto.Envelope{
		Success:   true,
		Message:   message,
		Data:      dto.FromCart(view),
		ItemCount: dto.IntPtr(view.ItemCount()),
	})
}

// GetCart возвращает корзину пользователя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.Get(userID(r))
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch cart")
		return
	}
	writeCart(w, http.StatusOK, "", view)
}

// AddCartItem добавляет товар в корзину.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req dto.AddItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}

	view, err := h.carts.AddItem(userID(r), req.ProductID, req.QuantityOrDefault())
	if err != nil {
		writeError(w, h.logger, err, "Failed to add item to cart")
		return
	}
	writeCart(w, http.StatusCreated, "Item added to cart successfully", view)
}

// UpdateCartItem задаёт количество для позиции корзины.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}
	quantity, err := req.Validate()
	if err != nil {
		writeError(w, h.logger, err, "Failed to update cart item")
		return
	}

	view, err := h.carts.UpdateItemQuantity(userID(r), chi.URLParam(r, "id"), quantity)
	if err != nil {
		writeError(w, h.logger, err, "Failed to update cart item")
		return
	}
	writeCart(w, http.StatusOK, "Cart item updated successfully", view)
}

// RemoveCartItem удаляет позицию из корзины.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.RemoveItem(userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err, "Failed to remove item from cart")
		return
	}
	writeCart(w, http.StatusOK, "Item removed from cart successfully", view)
}

// ClearCart очищает корзину.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.Clear(userID(r))
	if err != nil {
		writeError(w, h.logger, err, "Failed to clear cart")
		return
	}
	writeCart(w, http.StatusOK, "Cart cleared successfully", view)
}

// Checkout оформляет заказ. С заголовком Idempotency-Key повтор запроса
// возвращает сохранённый ответ.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}

	uid := userID(r)
	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key == "" || h.idem == nil {
		status, body := h.placeOrder(r, uid, req)
		writeJSON(w, status, body)
		return
	}
	h.checkoutIdempotent(w, r, key, uid, req)
}

func (h *Handler) placeOrder(r *http.Request, uid string, req dto.CheckoutRequest) (int, dto.Envelope) {
	result, err := h.checkout.Checkout(r.Context(), req.ToCheckout(uid))
	if err != nil {
		return errorResponse(h.logger, err, "Failed to process checkout")
	}
	return http.StatusCreated, dto.Envelope{
		Success: true,
		Message: "Checkout completed successfully",
		Data:    dto.FromCheckout(result),
	}
}

// ListOrders возвращает последние заказы.
func (h *Handler) ListOrders(w http.ResponseWriter, _ *http.Request) {
	orders, err := h.checkout.RecentOrders()
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch orders")
		return
	}
	writeJSON(w, http.StatusOK, dto.Envelope{
		Success: true,
		Data:    dto.FromOrders(orders),
		Count:   dto.IntPtr(len(orders)),
	})
}

// GetOrder возвращает заказ по номеру.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.checkout.Order(chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch order")
		return
	}
	writeJSON(w, http.StatusOK, dto.Envelope{Success: true, Data: dto.FromOrder(order)})
}
