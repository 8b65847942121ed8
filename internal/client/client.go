// Package client talks to a cangate interlock server over gRPC.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ppiankov/cangate/internal/api"
	"github.com/ppiankov/cangate/internal/model"
	"github.com/ppiankov/cangate/internal/safety"
)

// callTimeout bounds every RPC.
const callTimeout = 5 * time.Second

// Client connects to a cangate interlock server.
type Client struct {
	conn *grpc.ClientConn
}

// New creates a gRPC client for the given address. The connection is
// established lazily; an unreachable server surfaces on the first call.
func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to interlock server: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) invoke(method string, in, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return c.conn.Invoke(ctx, method, in, out)
}

// Transmit asks the server whether f may be sent.
// Fail-closed: returns false with the RPC error if the server cannot answer.
func (c *Client) Transmit(f model.Frame, longitudinalAllowed bool) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(api.MethodTransmit, api.TransmitStruct(f, longitudinalAllowed), out); err != nil {
		return false, fmt.Errorf("interlock server unreachable: %w", err)
	}
	return out.GetValue(), nil
}

// Receive feeds a received frame and returns its validity. Fail-closed:
// false on error.
func (c *Client) Receive(f model.Frame) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(api.MethodReceive, api.FrameStruct(f), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// Forward asks where f should be relayed. Returns model.NoForward on error.
func (c *Client) Forward(f model.Frame) (int, error) {
	out := new(wrapperspb.Int32Value)
	if err := c.invoke(api.MethodForward, api.FrameStruct(f), out); err != nil {
		return model.NoForward, err
	}
	return int(out.GetValue()), nil
}

// Status returns the remote interlock status.
func (c *Client) Status() (safety.Status, error) {
	out := new(structpb.Struct)
	if err := c.invoke(api.MethodStatus, &emptypb.Empty{}, out); err != nil {
		return safety.Status{}, err
	}
	var st safety.Status
	if err := api.FromStruct(out, &st); err != nil {
		return safety.Status{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// SetSafetyMode selects a mode on the server by name or number.
func (c *Client) SetSafetyMode(mode string, param int16) (safety.Status, error) {
	out := new(structpb.Struct)
	if err := c.invoke(api.MethodSetSafetyMode, api.ModeStruct(mode, param), out); err != nil {
		return safety.Status{}, err
	}
	var st safety.Status
	if err := api.FromStruct(out, &st); err != nil {
		return safety.Status{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// SetRelayMalfunction reports a relay fault to the server.
func (c *Client) SetRelayMalfunction() error {
	return c.invoke(api.MethodSetRelayMalfunction, &emptypb.Empty{}, &emptypb.Empty{})
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
