package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"backdash/internal/lifecycle"
)

// Client watches a relay server.
type Client struct {
	addr string
	log  *slog.Logger
	opts []grpc.DialOption
}

// NewClient creates a client targeting the given gRPC address. Extra dial
// options are appended to the insecure transport credentials.
func NewClient(addr string, log *slog.Logger, opts ...grpc.DialOption) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{addr: addr, log: log, opts: opts}
}

// Watch streams snapshots into fn. An empty runID follows whatever run the
// server is polling. It returns nil when the server ends the stream, fn's
// error if fn fails, or ctx's error once ctx is done.
func (c *Client) Watch(ctx context.Context, runID string, fn func(lifecycle.Snapshot) error) error {
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, c.opts...)
	conn, err := grpc.NewClient(c.addr, opts...)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.addr, err)
	}
	defer conn.Close()

	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], watchRunMethod)
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	req, err := structpb.NewStruct(map[string]any{"run_id": runID})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	c.log.Info("connected to run relay", "addr", c.addr, "run_id", runID)

	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receiving snapshot: %w", err)
		}
		if err := fn(decode(msg)); err != nil {
			return err
		}
	}
}
