package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Membership metrics
	MembershipViewSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sdfs_membership_view_size",
			Help: "Number of non-suspected nodes currently in the local member view",
		},
	)

	MembershipSuspectedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sdfs_membership_suspected",
			Help: "Number of nodes currently suspected failed",
		},
	)

	MembershipFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sdfs_membership_failures_total",
			Help: "Total number of nodes removed from the view after T_CLEAN",
		},
	)

	ElectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sdfs_elections_total",
			Help: "Total number of bully elections run by this node",
		},
	)

	IsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sdfs_is_leader",
			Help: "Whether this node currently believes it is the leader (1 = leader, 0 = follower)",
		},
	)

	// Coordinator metrics
	ReplicaRepairsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sdfs_replica_repairs_total",
			Help: "Total number of replicas re-created by the leader's re-replication",
		},
	)

	ReplicatedFilesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sdfs_replicated_files_total",
			Help: "Number of logical files in the replica table, including those with an empty replica set",
		},
	)

	FileActorsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sdfs_file_actors_total",
			Help: "Number of live per-file actor goroutines",
		},
	)

	FileQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sdfs_file_queue_depth",
			Help: "Current queue depth of a file's actor, by file name",
		},
		[]string{"file"},
	)

	CoordinatorOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdfs_coordinator_ops_total",
			Help: "Total number of leader coordinator operations by kind and result",
		},
		[]string{"op", "result"},
	)

	CoordinatorOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdfs_coordinator_op_duration_seconds",
			Help:    "Leader coordinator operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Dispatcher metrics
	MapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sdfs_map_job_duration_seconds",
			Help:    "Wall-clock duration of a MAP job from dispatch to ACK",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	ReduceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sdfs_reduce_job_duration_seconds",
			Help:    "Wall-clock duration of a REDUCE job from dispatch to ACK",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	BlocksRetriedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sdfs_dispatch_blocks_retried_total",
			Help: "Total number of map/reduce blocks reassigned after a worker failure",
		},
	)

	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdfs_jobs_failed_total",
			Help: "Total number of map/reduce jobs that terminated without an ACK",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		MembershipViewSize,
		MembershipSuspectedTotal,
		MembershipFailuresTotal,
		ElectionsTotal,
		IsLeader,
		ReplicaRepairsTotal,
		ReplicatedFilesTotal,
		FileActorsTotal,
		FileQueueDepth,
		CoordinatorOpsTotal,
		CoordinatorOpDuration,
		MapDuration,
		ReduceDuration,
		BlocksRetriedTotal,
		JobsFailedTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
