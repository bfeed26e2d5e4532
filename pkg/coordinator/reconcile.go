package coordinator

import (
	"context"

	"github.com/cuemby/sdfs/pkg/events"
	"github.com/cuemby/sdfs/pkg/metrics"
	"github.com/cuemby/sdfs/pkg/types"
)

// Replicator issues a LeaderPutReq instructing sender to proxy file to
// receiver, returning once the end-to-end transfer is acknowledged or
// has failed. It is the storage-node TCP round trip, injected so the
// coordinator package stays free of wire/transport concerns.
type Replicator func(ctx context.Context, sender, receiver types.NodeID, file string) error

// Reconcile drains the membership failure-event channel and re-replicates
// every file that lost a member but did not lose every member, as
// described in the re-replication design: compute the shortfall, pick
// that many surviving senders (repeating the last if short) and that
// many new receivers excluding current holders, and retry until the
// shortfall clears or the view can no longer supply enough live nodes.
func (c *Coordinator) Reconcile(ctx context.Context, failures <-chan types.NodeID, replicate Replicator) {
	for {
		batch, ok := collectBatch(ctx, failures)
		if !ok {
			return
		}

		lost := make(map[types.NodeID]bool, len(batch))
		for _, id := range batch {
			lost[id] = true
		}

		changed := c.replicas.RemoveMembers(lost)
		for file, result := range changed {
			missing := result.Prior - len(result.Remaining)
			if missing <= 0 || missing >= result.Prior {
				continue
			}
			c.repair(ctx, file, result.Remaining, missing, replicate)
		}
	}
}

// collectBatch reads one failure and then drains any further failures
// already queued, so a burst of near-simultaneous losses is handled as
// one re-replication pass per affected file.
func collectBatch(ctx context.Context, failures <-chan types.NodeID) ([]types.NodeID, bool) {
	select {
	case id, ok := <-failures:
		if !ok {
			return nil, false
		}
		batch := []types.NodeID{id}
		for {
			select {
			case id, ok := <-failures:
				if !ok {
					return batch, true
				}
				batch = append(batch, id)
			default:
				return batch, true
			}
		}
	case <-ctx.Done():
		return nil, false
	}
}

// repair drives a single file's replica set back toward
// ReplicationFactor, retrying until success or the live view can no
// longer supply the shortfall.
func (c *Coordinator) repair(ctx context.Context, file string, remaining []types.NodeID, missing int, replicate Replicator) {
	for {
		if ctx.Err() != nil {
			return
		}

		senders := pickSenders(remaining, missing)
		if len(senders) == 0 {
			c.logger.Warn().Str("file", file).Msg("no surviving replica to source re-replication from")
			return
		}

		exclude := make(map[types.NodeID]bool, len(remaining))
		for _, id := range remaining {
			exclude[id] = true
		}
		receivers := nodeIDs(c.view.RandomLive(missing, exclude))
		if len(receivers) == 0 {
			c.logger.Warn().Str("file", file).Msg("no live node available to receive re-replicated file")
			return
		}

		var successes []types.NodeID
		for i, receiver := range receivers {
			sender := senders[i]
			if err := replicate(ctx, sender, receiver, file); err != nil {
				c.logger.Warn().Err(err).Str("file", file).Str("sender", string(sender)).
					Str("receiver", string(receiver)).Msg("re-replication attempt failed")
				continue
			}
			successes = append(successes, receiver)
			metrics.ReplicaRepairsTotal.Inc()
		}

		updated := dedupeNodeIDs(append(append([]types.NodeID(nil), remaining...), successes...))
		c.replicas.Set(file, updated)
		if c.events != nil {
			c.events.Publish(&events.Event{Type: events.EventFileRepaired, Message: file})
		}

		missing = ReplicationFactor - len(updated)
		if missing <= 0 {
			return
		}
		remaining = updated
	}
}

// pickSenders chooses `missing` surviving replicas to act as senders,
// repeating the last sender if there are fewer senders than receivers.
func pickSenders(remaining []types.NodeID, missing int) []types.NodeID {
	if len(remaining) == 0 {
		return nil
	}
	out := make([]types.NodeID, missing)
	for i := 0; i < missing; i++ {
		if i < len(remaining) {
			out[i] = remaining[i]
		} else {
			out[i] = remaining[len(remaining)-1]
		}
	}
	return out
}
