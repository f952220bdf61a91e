package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC-сервиса витрины.
const ServiceName = "storefront.v1.StorefrontService"

// Полные имена методов.
const (
	MethodListProducts   = "/" + ServiceName + "/ListProducts"
	MethodGetProduct     = "/" + ServiceName + "/GetProduct"
	MethodGetCart        = "/" + ServiceName + "/GetCart"
	MethodAddCartItem    = "/" + ServiceName + "/AddCartItem"
	MethodUpdateCartItem = "/" + ServiceName + "/UpdateCartItem"
	MethodRemoveCartItem = "/" + ServiceName + "/RemoveCartItem"
	MethodClearCart      = "/" + ServiceName + "/ClearCart"
	MethodCheckout       = "/" + ServiceName + "/Checkout"
	MethodListOrders     = "/" + ServiceName + "/ListOrders"
	MethodGetOrder       = "/" + ServiceName + "/GetOrder"
)

// StorefrontServer — серверная часть сервиса. Запросы и ответы передаются как
// google.protobuf.Struct с теми же JSON-полями, что и в REST API.
type StorefrontServer interface {
	ListProducts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddCartItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateCartItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveCartItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearCart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Checkout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOrders(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(StorefrontServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StorefrontServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(StorefrontServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// StorefrontServiceDesc описывает сервис для grpc.Server без сгенерированного кода.
var StorefrontServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StorefrontServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ListProducts", StorefrontServer.ListProducts),
		unaryMethod("GetProduct", StorefrontServer.GetProduct),
		unaryMethod("GetCart", StorefrontServer.GetCart),
		unaryMethod("AddCartItem", StorefrontServer.AddCartItem),
		unaryMethod("UpdateCartItem", StorefrontServer.UpdateCartItem),
		unaryMethod("RemoveCartItem", StorefrontServer.RemoveCartItem),
		unaryMethod("ClearCart", StorefrontServer.ClearCart),
		unaryMethod("Checkout", StorefrontServer.Checkout),
		unaryMethod("ListOrders", StorefrontServer.ListOrders),
		unaryMethod("GetOrder", StorefrontServer.GetOrder),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/storefront.proto",
}

// RegisterStorefrontServer регистрирует реализацию на gRPC-сервере.
func RegisterStorefrontServer(s grpc.ServiceRegistrar, srv StorefrontServer) {
	s.RegisterService(&StorefrontServiceDesc, srv)
}

// StorefrontClient вызывает сервис витрины.
type StorefrontClient struct {
	cc grpc.ClientConnInterface
}

// NewStorefrontClient создаёт клиента поверх соединения.
func NewStorefrontClient(cc grpc.ClientConnInterface) *StorefrontClient {
	return &StorefrontClient{cc: cc}
}

// Call вызывает метод сервиса по полному имени.
func (c *StorefrontClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
