package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydock_sweep_runs_total",
			Help: "Total number of artifact sweep runs by status.",
		},
		[]string{"status"},
	)
	sweepFilesDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydock_sweep_files_deleted_total",
			Help: "Total number of result artifacts deleted by retention sweeps.",
		},
	)
	sweepBytesReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydock_sweep_bytes_reclaimed_total",
			Help: "Total bytes reclaimed by retention sweeps.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		sweepRunsTotal,
		sweepFilesDeletedTotal,
		sweepBytesReclaimedTotal,
	)
}
