package membership

import (
	"context"
	"time"

	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/metrics"
	"github.com/cuemby/sdfs/pkg/types"
)

// failureCheckPeriod is how often the view is scanned for stale nodes.
// It runs well inside TFail so suspicion/removal land close to their
// nominal thresholds.
const failureCheckPeriod = 200 * time.Millisecond

// Monitor periodically applies the TFail/TClean timeouts to a View and
// publishes each newly removed node's identifier on Failures.
type Monitor struct {
	view     *View
	Failures chan types.NodeID
}

// NewMonitor creates a Monitor with a reasonably buffered failure channel;
// the coordinator drains it in batches.
func NewMonitor(view *View) *Monitor {
	return &Monitor{
		view:     view,
		Failures: make(chan types.NodeID, 64),
	}
}

// Run scans the view on a fixed period until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	logger := log.WithComponent("failure-monitor")
	ticker := time.NewTicker(failureCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := m.view.ApplyTimeouts()
			metrics.MembershipViewSize.Set(float64(len(m.view.Live())))
			for _, id := range removed {
				logger.Warn().Str("node", string(id)).Msg("node removed from view")
				metrics.MembershipFailuresTotal.Inc()
				select {
				case m.Failures <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
