package server

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ppiankov/cangate/internal/api"
)

// rpcService adapts Server to api.InterlockServer.
type rpcService struct {
	s *Server
}

var _ api.InterlockServer = rpcService{}

func (r rpcService) Transmit(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	f, err := api.FrameFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return wrapperspb.Bool(r.s.Tx(f, api.Longitudinal(req))), nil
}

func (r rpcService) Receive(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	f, err := api.FrameFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return wrapperspb.Bool(r.s.Rx(f)), nil
}

func (r rpcService) Forward(ctx context.Context, req *structpb.Struct) (*wrapperspb.Int32Value, error) {
	f, err := api.FrameFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return wrapperspb.Int32(int32(r.s.Fwd(int(f.Bus), f))), nil
}

func (r rpcService) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := api.ToStruct(r.s.InterlockStatus())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (r rpcService) SetSafetyMode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, param, err := api.ModeFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := r.s.SetSafetyMode(name, param); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return r.Status(ctx, nil)
}

func (r rpcService) SetRelayMalfunction(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	r.s.SetRelay()
	return &emptypb.Empty{}, nil
}
