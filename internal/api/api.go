// Package api defines the cangate.v1.Interlock gRPC service. Messages are
// the protobuf well-known types, so no generated code is needed.
package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ppiankov/cangate/internal/model"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "cangate.v1.Interlock"

// Full method names.
const (
	MethodTransmit            = "/" + ServiceName + "/Transmit"
	MethodReceive             = "/" + ServiceName + "/Receive"
	MethodForward             = "/" + ServiceName + "/Forward"
	MethodStatus              = "/" + ServiceName + "/Status"
	MethodSetSafetyMode       = "/" + ServiceName + "/SetSafetyMode"
	MethodSetRelayMalfunction = "/" + ServiceName + "/SetRelayMalfunction"
)

// InterlockServer is the server side of the service.
//
// Transmit takes a frame struct plus "longitudinal_allowed" and returns the
// decision. Receive returns frame validity. Forward returns the
// destination bus, -1 for none. Status returns the interlock status as a
// struct. SetSafetyMode takes "mode" and "param".
type InterlockServer interface {
	Transmit(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	Receive(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	Forward(context.Context, *structpb.Struct) (*wrapperspb.Int32Value, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetSafetyMode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetRelayMalfunction(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

func unary[Req proto.Message, Resp proto.Message](
	name, full string,
	newReq func() Req,
	call func(InterlockServer, context.Context, Req) (Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InterlockServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(InterlockServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newStruct() *structpb.Struct { return new(structpb.Struct) }
func newEmpty() *emptypb.Empty    { return new(emptypb.Empty) }

// ServiceDesc describes the service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InterlockServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Transmit", MethodTransmit, newStruct, InterlockServer.Transmit),
		unary("Receive", MethodReceive, newStruct, InterlockServer.Receive),
		unary("Forward", MethodForward, newStruct, InterlockServer.Forward),
		unary("Status", MethodStatus, newEmpty, InterlockServer.Status),
		unary("SetSafetyMode", MethodSetSafetyMode, newStruct, InterlockServer.SetSafetyMode),
		unary("SetRelayMalfunction", MethodSetRelayMalfunction, newEmpty, InterlockServer.SetRelayMalfunction),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cangate/v1/interlock",
}

// RegisterInterlockServer registers srv on s.
func RegisterInterlockServer(s grpc.ServiceRegistrar, srv InterlockServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Request field names.
const (
	FieldBus          = "bus"
	FieldAddr         = "addr"
	FieldData         = "data"
	FieldLongitudinal = "longitudinal_allowed"
	FieldMode         = "mode"
	FieldParam        = "param"
)

// FrameStruct encodes f as a request struct.
func FrameStruct(f model.Frame) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldBus:  structpb.NewNumberValue(float64(f.Bus)),
		FieldAddr: structpb.NewNumberValue(float64(f.Addr)),
		FieldData: structpb.NewStringValue(f.HexData()),
	}}
}

// TransmitStruct encodes a transmit request.
func TransmitStruct(f model.Frame, longitudinalAllowed bool) *structpb.Struct {
	s := FrameStruct(f)
	s.Fields[FieldLongitudinal] = structpb.NewBoolValue(longitudinalAllowed)
	return s
}

// ModeStruct encodes a set-safety-mode request.
func ModeStruct(mode string, param int16) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldMode:  structpb.NewStringValue(mode),
		FieldParam: structpb.NewNumberValue(float64(param)),
	}}
}

// FrameFromStruct decodes and validates a frame request.
func FrameFromStruct(s *structpb.Struct) (model.Frame, error) {
	fields := s.GetFields()
	bus, err := integer(fields, FieldBus, 0, model.MaxBus)
	if err != nil {
		return model.Frame{}, err
	}
	addr, err := integer(fields, FieldAddr, 0, model.MaxExtAddr)
	if err != nil {
		return model.Frame{}, err
	}
	v, ok := fields[FieldData]
	if !ok {
		return model.NewFrame(uint8(bus), uint32(addr), nil)
	}
	data, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return model.Frame{}, fmt.Errorf("field %q: want hex string", FieldData)
	}
	return model.ParseHexFrame(uint8(bus), uint32(addr), data.StringValue)
}

// Longitudinal reads the longitudinal flag of a transmit request.
func Longitudinal(s *structpb.Struct) bool {
	return s.GetFields()[FieldLongitudinal].GetBoolValue()
}

// ModeFromStruct decodes a set-safety-mode request.
func ModeFromStruct(s *structpb.Struct) (string, int16, error) {
	fields := s.GetFields()
	mode := fields[FieldMode].GetStringValue()
	if mode == "" {
		return "", 0, fmt.Errorf("field %q is required", FieldMode)
	}
	param, err := integer(fields, FieldParam, -32768, 32767)
	if err != nil {
		return "", 0, err
	}
	return mode, int16(param), nil
}

func integer(fields map[string]*structpb.Value, name string, lo, hi int64) (int64, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}
	num, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("field %q: want number", name)
	}
	n := int64(num.NumberValue)
	if float64(n) != num.NumberValue || n < lo || n > hi {
		return 0, fmt.Errorf("field %q: %v out of range [%d, %d]", name, num.NumberValue, lo, hi)
	}
	return n, nil
}

// ToStruct converts any JSON-marshalable value into a struct.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes a struct into v through JSON.
func FromStruct(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
