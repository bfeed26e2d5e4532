package client

import (
	"context"

	"github.com/cuemby/sdfs/pkg/types"
)

// PushFile is a storagenode.Pusher: it PUTs data to receiver under name,
// the mechanism MapRunner uses to fan out intermediate key files and the
// LeaderPutReq handler uses to proxy re-replicated/uploaded files.
func (c *Client) PushFile(ctx context.Context, receiver types.NodeID, name string, data []byte) error {
	return c.Put(ctx, receiver, name, data)
}

// FetchFile is a storagenode.Fetcher: it fetches name from holder.
func (c *Client) FetchFile(ctx context.Context, holder types.NodeID, name string) ([]byte, error) {
	return c.Get(ctx, holder, name)
}
