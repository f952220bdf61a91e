package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/dto"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

const (
	userIDHeader = "x-user-id"

	idempotencyKeyHeader = "idempotency-key"
)

// StorefrontService реализует gRPC API поверх сервисов каталога, корзины и оформления.
type StorefrontService struct {
	catalog  *catalog.Service
	carts    *cart.Service
	checkout *checkout.Processor
	guard    *idempotency.Guard
	logger   *log.Entry
}

var _ StorefrontServer = (*StorefrontService)(nil)

// NewStorefrontService конструирует сервис с зависимостями.
func NewStorefrontService(
	catalogSvc *catalog.Service,
	carts *cart.Service,
	processor *checkout.Processor,
	idemRepo domain.IdempotencyRepository,
	logger *log.Entry,
) *StorefrontService {
	if logger == nil {
		logger = log.New().WithField("component", "storefront-grpc")
	}
	return &StorefrontService{
		catalog:  catalogSvc,
		carts:    carts,
		checkout: processor,
		guard:    idempotency.NewGuard(idemRepo),
		logger:   logger,
	}
}

// ListProducts возвращает товары в наличии.
func (s *StorefrontService) ListProducts(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	products, err := s.catalog.ListInStock()
	if err != nil {
		return nil, s.toStatus(err, "ListProducts")
	}
	return toStruct(dto.Envelope{
		Success: true,
		Data:    dto.FromProducts(products),
		Count:   dto.IntPtr(len(products)),
	})
}

// GetProduct возвращает товар по id.
func (s *StorefrontService) GetProduct(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	product, err := s.catalog.GetByID(in.ID)
	if err != nil {
		return nil, s.toStatus(err, "GetProduct")
	}
	return toStruct(dto.Envelope{Success: true, Data: dto.FromProduct(product)})
}

// GetCart возвращает корзину пользователя из метаданных x-user-id.
func (s *StorefrontService) GetCart(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	view, err := s.carts.Get(readUserID(ctx))
	if err != nil {
		return nil, s.toStatus(err, "GetCart")
	}
	return cartResponse("", view)
}

// AddCartItem добавляет товар в корзину.
func (s *StorefrontService) AddCartItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.AddItemRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	view, err := s.carts.AddItem(readUserID(ctx), in.ProductID, in.QuantityOrDefault())
	if err != nil {
		return nil, s.toStatus(err, "AddCartItem")
	}
	return cartResponse("Item added to cart successfully", view)
}

// UpdateCartItem задаёт количество позиции.
func (s *StorefrontService) UpdateCartItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID string `json:"id"`
		dto.UpdateItemRequest
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	quantity, err := in.Validate()
	if err != nil {
		return nil, s.toStatus(err, "UpdateCartItem")
	}

	view, err := s.carts.UpdateItemQuantity(readUserID(ctx), in.ID, quantity)
	if err != nil {
		return nil, s.toStatus(err, "UpdateCartItem")
	}
	return cartResponse("Cart item updated successfully", view)
}

// RemoveCartItem удаляет позицию.
func (s *StorefrontService) RemoveCartItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	view, err := s.carts.RemoveItem(readUserID(ctx), in.ID)
	if err != nil {
		return nil, s.toStatus(err, "RemoveCartItem")
	}
	return cartResponse("Item removed from cart successfully", view)
}

// ClearCart очищает корзину.
func (s *StorefrontService) ClearCart(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	view, err := s.carts.Clear(readUserID(ctx))
	if err != nil {
		return nil, s.toStatus(err, "ClearCart")
	}
	return cartResponse("Cart cleared successfully", view)
}

// Checkout оформляет заказ. Требует метаданные idempotency-key.
func (s *StorefrontService) Checkout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	uid := readUserID(ctx)
	return idempotent(
		ctx,
		s,
		MethodCheckout+":"+uid,
		req,
		func() *structpb.Struct { return &structpb.Struct{} },
		func(ctx context.Context) (*structpb.Struct, error) {
			return s.checkoutInternal(ctx, uid, req)
		},
	)
}

func (s *StorefrontService) checkoutInternal(ctx context.Context, uid string, req *structpb.Struct) (*structpb.Struct, error) {
	var in dto.CheckoutRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	snapNumericPrices(req, &in)

	result, err := s.checkout.Checkout(ctx, in.ToCheckout(uid))
	if err != nil {
		return nil, s.toStatus(err, "Checkout")
	}
	return toStruct(dto.Envelope{
		Success: true,
		Message: "Checkout completed successfully",
		Data:    dto.FromCheckout(result),
	})
}

// ListOrders возвращает последние заказы.
func (s *StorefrontService) ListOrders(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	orders, err := s.checkout.RecentOrders()
	if err != nil {
		return nil, s.toStatus(err, "ListOrders")
	}
	return toStruct(dto.Envelope{
		Success: true,
		Data:    dto.FromOrders(orders),
		Count:   dto.IntPtr(len(orders)),
	})
}

// GetOrder возвращает заказ по номеру.
func (s *StorefrontService) GetOrder(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		OrderNumber string `json:"orderNumber"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	order, err := s.checkout.Order(in.OrderNumber)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder")
	}
	return toStruct(dto.Envelope{Success: true, Data: dto.FromOrder(order)})
}

func cartResponse(message string, view cart.View) (*structpb.Struct, error) {
	return toStruct(dto.Envelope{
		Success:   true,
		Message:   message,
		Data:      dto.FromCart(view),
		ItemCount: dto.IntPtr(view.ItemCount()),
	})
}

// toStatus маппит доменную ошибку в gRPC-статус. Детали внутренних ошибок
// остаются в логе.
func (s *StorefrontService) toStatus(err error, operation string) error {
	message := dto.PublicMessage(err)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, message)
	case errors.Is(err, domain.ErrEmptyCart):
		return status.Error(codes.FailedPrecondition, message)
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, message)
	case errors.Is(err, domain.ErrCartVersionConflict):
		return status.Error(codes.Aborted, message)
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.AlreadyExists, message)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.WithError(err).WithField("operation", operation).Error("storefront operation failed")
		return status.Error(codes.Internal, dto.InternalErrorMessage)
	}
}

func readUserID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(userIDHeader); len(values) > 0 {
			return domain.NormalizeUserID(values[0])
		}
	}
	return domain.GuestUserID
}

// fromStruct декодирует Struct в JSON-модель запроса.
func fromStruct(in *structpb.Struct, dst any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	return nil
}

// floatNoise больше погрешности float64 для сумм в пределах NUMERIC(12,2), но меньше копейки.
var floatNoise = decimal.New(1, -9)

// snapNumericPrices округляет до копеек цены, пришедшие числом Struct: 0.1+0.2 становится 0.30.
// Строковые цены декодируются точно и не трогаются; настоящие доли копейки остаются
// как есть и отклоняются при оформлении.
func snapNumericPrices(req *structpb.Struct, in *dto.CheckoutRequest) {
	values := req.GetFields()["cartItems"].GetListValue().GetValues()
	for i, value := range values {
		if i >= len(in.CartItems) {
			return
		}
		field, ok := value.GetStructValue().GetFields()["price"].GetKind().(*structpb.Value_NumberValue)
		if !ok {
			continue
		}
		price := decimal.NewFromFloat(field.NumberValue)
		if cents := price.Round(2); price.Sub(cents).Abs().LessThan(floatNoise) {
			in.CartItems[i].Price = &cents
		}
	}
}

// toStruct кодирует JSON-модель ответа в Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func trimmed(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
