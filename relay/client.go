package relay

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"humanity.network/core/syncer"
)

// Client implements syncer.Feed over the Feed gRPC service. A sync engine
// pointed at a Client behaves exactly as if it ran against an in-process
// Sequencer, except every envelope crossed the wire.
type Client struct {
	cc     *grpc.ClientConn
	client FeedClient

	// Timeout applies per RPC when non-zero, inside the caller's context.
	Timeout time.Duration
}

var _ syncer.Feed = (*Client)(nil)

type DialOptions struct {
	// Timeout seeds the per-RPC timeout of the returned client.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

// Dial connects to a relay. Transport security is out of scope here;
// deployments that need it wrap the target in their own credentials.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewFeedClient(cc), Timeout: opts.Timeout}, nil
}

// NewClient wraps an established connection. Close on the returned client
// closes cc.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewFeedClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Pull(ctx context.Context, spaceID string, cursor string, limit int) ([]syncer.Envelope, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("relay: client is not connected")
	}
	if limit < 0 {
		limit = 0
	}
	frame, err := marshalFrame(pullRequest{SpaceID: spaceID, Cursor: cursor, Limit: uint64(limit)})
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Pull(ctx, frame)
	if err != nil {
		return nil, mapRPC(err)
	}
	var resp pullResponse
	if err := unmarshalFrame(reply, &resp); err != nil {
		return nil, err
	}
	envs := make([]syncer.Envelope, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		envs = append(envs, syncer.Envelope{Bytes: e.Bytes, Cursor: e.Cursor})
	}
	return envs, nil
}

func (c *Client) Push(ctx context.Context, spaceID string, objects [][]byte) ([]syncer.PushResult, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("relay: client is not connected")
	}
	frame, err := marshalFrame(pushRequest{SpaceID: spaceID, Objects: objects})
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Push(ctx, frame)
	if err != nil {
		return nil, mapRPC(err)
	}
	var resp pushResponse
	if err := unmarshalFrame(reply, &resp); err != nil {
		return nil, err
	}
	results := make([]syncer.PushResult, 0, len(resp.Results))
	for _, v := range resp.Results {
		results = append(results, syncer.PushResult{ObjectID: v.ObjectID, Accepted: v.Accepted, Reason: v.Reason})
	}
	return results, nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
