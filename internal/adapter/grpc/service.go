package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages on the wire are google.protobuf.Struct documents whose fields
// follow the JSON shapes in the presenter package.

const (
	ServiceName = "dealflow.v1.CommissionService"

	MethodRecomputeForDealChange = "/" + ServiceName + "/RecomputeForDealChange"
	MethodOverridePaymentAmount  = "/" + ServiceName + "/OverridePaymentAmount"
	MethodClearPaymentOverride   = "/" + ServiceName + "/ClearPaymentOverride"
	MethodGetDealSummary         = "/" + ServiceName + "/GetDealSummary"
)

// CommissionServiceServer is the server API for the commission service
type CommissionServiceServer interface {
	RecomputeForDealChange(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OverridePaymentAmount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearPaymentOverride(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDealSummary(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterCommissionServiceServer registers srv on s
func RegisterCommissionServiceServer(s grpc.ServiceRegistrar, srv CommissionServiceServer) {
	s.RegisterService(&CommissionServiceDesc, srv)
}

// CommissionServiceDesc is the grpc.ServiceDesc for the commission service
var CommissionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommissionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RecomputeForDealChange",
			Handler: unaryHandler(MethodRecomputeForDealChange, func(srv CommissionServiceServer) handlerFunc {
				return srv.RecomputeForDealChange
			}),
		},
		{
			MethodName: "OverridePaymentAmount",
			Handler: unaryHandler(MethodOverridePaymentAmount, func(srv CommissionServiceServer) handlerFunc {
				return srv.OverridePaymentAmount
			}),
		},
		{
			MethodName: "ClearPaymentOverride",
			Handler: unaryHandler(MethodClearPaymentOverride, func(srv CommissionServiceServer) handlerFunc {
				return srv.ClearPaymentOverride
			}),
		},
		{
			MethodName: "GetDealSummary",
			Handler: unaryHandler(MethodGetDealSummary, func(srv CommissionServiceServer) handlerFunc {
				return srv.GetDealSummary
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dealflow/v1/commission.proto",
}

type handlerFunc func(context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, pick func(CommissionServiceServer) handlerFunc) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		call := pick(srv.(CommissionServiceServer))
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// CommissionServiceClient is a thin client over the same Struct messages
type CommissionServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCommissionServiceClient creates a client on cc
func NewCommissionServiceClient(cc grpc.ClientConnInterface) *CommissionServiceClient {
	return &CommissionServiceClient{cc: cc}
}

// Call invokes method with req encoded as a Struct and decodes the reply into resp
func (c *CommissionServiceClient) Call(ctx context.Context, method string, req, resp interface{}, opts ...grpc.CallOption) error {
	in, err := encodeStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return decodeStruct(out, resp)
}

// encodeStruct converts any JSON-encodable value into a Struct
func encodeStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return out, nil
}

// decodeStruct fills dst from a Struct using dst's JSON tags
func decodeStruct(in *structpb.Struct, dst interface{}) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}
