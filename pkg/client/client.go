package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/types"
	"github.com/cuemby/sdfs/pkg/wire"
)

// DialTimeout bounds how long a single storage-node connection attempt
// may take before the caller's round trip is abandoned.
const DialTimeout = 5 * time.Second

// Client dials pkg/storagenode's fixed TCP port and exchanges one
// Command per connection, matching the server's one-record-per-connection
// contract.
type Client struct {
	logger zerolog.Logger
}

// New creates a Client. It holds no per-peer state: every call dials
// fresh, since storage nodes come and go with cluster membership.
func New() *Client {
	return &Client{logger: log.WithComponent("client")}
}

// roundTrip dials addr, writes cmd, and reads back exactly one reply.
func (c *Client) roundTrip(ctx context.Context, addr string, cmd *wire.Command) (*wire.Command, error) {
	dialer := &net.Dialer{Timeout: DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := wire.WriteCommand(conn, cmd); err != nil {
		return nil, fmt.Errorf("client: writing to %s: %w", addr, err)
	}
	reply, err := wire.ReadCommand(conn)
	if err != nil {
		return nil, fmt.Errorf("client: reading from %s: %w", addr, err)
	}
	return reply, nil
}

func replyErr(reply *wire.Command) error {
	if reply.Fail != nil {
		return fmt.Errorf("client: %s", reply.Fail.Msg)
	}
	return nil
}

// Put sends the raw bytes of file to holder, used both for the client's
// own PUT fan-out and for MAP/REDUCE intermediate staging.
func (c *Client) Put(ctx context.Context, holder types.NodeID, file string, data []byte) error {
	reply, err := c.roundTrip(ctx, holder.Addr(), &wire.Command{PutData: &wire.PutData{File: file, Bytes: data}})
	if err != nil {
		return err
	}
	return replyErr(reply)
}

// Get fetches file from holder.
func (c *Client) Get(ctx context.Context, holder types.NodeID, file string) ([]byte, error) {
	reply, err := c.roundTrip(ctx, holder.Addr(), &wire.Command{GetReq: &wire.GetReq{File: file}})
	if err != nil {
		return nil, err
	}
	if err := replyErr(reply); err != nil {
		return nil, err
	}
	if reply.GetData == nil {
		return nil, fmt.Errorf("client: %s returned no data for %q", holder, file)
	}
	return reply.GetData.Bytes, nil
}

// Delete instructs holder to remove file.
func (c *Client) Delete(ctx context.Context, holder types.NodeID, file string) error {
	reply, err := c.roundTrip(ctx, holder.Addr(), &wire.Command{Delete: &wire.Delete{File: file}})
	if err != nil {
		return err
	}
	return replyErr(reply)
}

// fileSizeFrom asks one specific holder for file's line count.
func (c *Client) fileSizeFrom(ctx context.Context, holder types.NodeID, file string) (uint32, error) {
	reply, err := c.roundTrip(ctx, holder.Addr(), &wire.Command{FileSizeReq: &wire.FileSizeReq{File: file}})
	if err != nil {
		return 0, err
	}
	if err := replyErr(reply); err != nil {
		return 0, err
	}
	if reply.FileSizeRes == nil {
		return 0, fmt.Errorf("client: %s returned no size for %q", holder, file)
	}
	return reply.FileSizeRes.Size, nil
}

// FileSize is a dispatch.WorkerClient.FileSize: it tries each holder in
// order and returns the first successful answer.
func (c *Client) FileSize(ctx context.Context, holders []types.NodeID, file string) (uint32, error) {
	var lastErr error
	for _, h := range holders {
		size, err := c.fileSizeFrom(ctx, h, file)
		if err == nil {
			return size, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("client: no holders for %q", file)
	}
	return 0, lastErr
}

// Replicate is a coordinator.Replicator: it asks sender to proxy file to
// receiver via a LeaderPutReq round trip.
func (c *Client) Replicate(ctx context.Context, sender, receiver types.NodeID, file string) error {
	reply, err := c.roundTrip(ctx, sender.Addr(), &wire.Command{LeaderPutReq: &wire.LeaderPutReq{
		Machine: string(receiver),
		File:    file,
	}})
	if err != nil {
		return err
	}
	return replyErr(reply)
}
