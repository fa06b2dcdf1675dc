package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vdsm_jobs_processed_total",
		Help: "Total number of summarization jobs finished, by status",
	}, []string{"status"})

	JobsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vdsm_jobs_submitted_total",
		Help: "Total number of summarization requests accepted, by request type",
	}, []string{"request_type"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vdsm_stage_duration_seconds",
		Help:    "Duration of each summarization pipeline stage",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vdsm_frames_sampled_total",
		Help: "Total number of frames decoded by the sampler across all jobs",
	})

	FramesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vdsm_frames_skipped_total",
		Help: "Total number of frames the sampler could not decode",
	})

	ScenesSelectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vdsm_scenes_selected_total",
		Help: "Total number of scenes written into summaries",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vdsm_active_workers",
		Help: "Number of workers currently running a summarization job",
	})

	RedeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vdsm_redeliveries_total",
		Help: "Total number of task deliveries requeued after a handler error",
	}, []string{"task"})

	StaleJobsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vdsm_stale_jobs_failed_total",
		Help: "Total number of abandoned jobs failed by the reconciler",
	})
)
