// Package metrics centralizes Prometheus metric definitions.
package metrics

import (
	"errors"

	"github.com/digineo/purged"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PurgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purged_requests_total",
		Help: "Number of purge requests, by mode and outcome",
	}, []string{"mode", "outcome"})

	PurgeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "purged_duration_seconds",
		Help: "Overview of purge processing time, by mode",
		Buckets: []float64{
			.0005, .001, .005, .01, .05, // single key lookups
			.1, .5, 1, 5, 10, 30, 60, 300, // tree traversals
		},
	}, []string{"mode"})

	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purged_files_total",
		Help: "Number of cache files handled by purges, by result",
	}, []string{"result"})

	FilesRemoved      = filesTotal.WithLabelValues("removed")
	FilesDeleteFailed = filesTotal.WithLabelValues("delete_failed")
	FilesReadFailed   = filesTotal.WithLabelValues("read_failed")

	MirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purged_mirror_failures_total",
		Help: "Number of failed downstream invalidations",
	})

	Info = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "purged_info",
		Help:        "Various runtime and configuration information",
		ConstLabels: prometheus.Labels{"version": purged.Version()},
	}, []string{"mirror"})
)

// ZoneStats reports a zone's current utilization.
type ZoneStats func() (entries int, sizeBytes int64)

// RegisterZone exposes the utilization of the named cache zone. When the
// zone name is already registered, the existing gauges are replaced, so
// they report the most recently registered stats.
func RegisterZone(name string, stats ZoneStats) error {
	labels := prometheus.Labels{"zone": name}
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "purged_zone_entries",
			Help:        "Number of index entries in a cache zone",
			ConstLabels: labels,
		}, func() float64 {
			n, _ := stats()
			return float64(n)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "purged_zone_size_bytes",
			Help:        "Accounted size of a cache zone",
			ConstLabels: labels,
		}, func() float64 {
			_, sz := stats()
			return float64(sz)
		}),
	}

	for _, c := range collectors {
		err := prometheus.Register(c)
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			prometheus.Unregister(are.ExistingCollector)
			err = prometheus.Register(c)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
