// Package metrics exposes process and operation counters for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runningInstances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hsm_running_instances",
		Help: "Number of server processes currently running.",
	})

	instanceRAM = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hsm_instance_ram_megabytes",
		Help: "Resident memory of an instance's server process.",
	}, []string{"instance"})

	instanceCPU = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hsm_instance_cpu_percent",
		Help: "CPU usage of an instance's server process.",
	}, []string{"instance"})

	processExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hsm_process_exits_total",
		Help: "Server process exits by outcome (clean, crashed, forced).",
	}, []string{"instance", "outcome"})

	updateOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hsm_update_operations_total",
		Help: "Install and update operations by result.",
	}, []string{"result"})

	backupsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hsm_backups_created_total",
		Help: "Backups created by type.",
	}, []string{"type"})

	updateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hsm_update_duration_seconds",
		Help:    "Duration of install and update operations.",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func SetRunning(n int) {
	runningInstances.Set(float64(n))
}

func ObserveResources(instance string, ramMB, cpuPercent float64) {
	instanceRAM.WithLabelValues(instance).Set(ramMB)
	instanceCPU.WithLabelValues(instance).Set(cpuPercent)
}

// ForgetInstance drops the per-instance gauges once a process is gone.
func ForgetInstance(instance string) {
	instanceRAM.DeleteLabelValues(instance)
	instanceCPU.DeleteLabelValues(instance)
}

func ProcessExited(instance, outcome string) {
	processExits.WithLabelValues(instance, outcome).Inc()
}

func UpdateFinished(ok bool, seconds float64) {
	result := "failed"
	if ok {
		result = "ok"
	}
	updateOperations.WithLabelValues(result).Inc()
	updateDuration.Observe(seconds)
}

func BackupCreated(kind string) {
	backupsCreated.WithLabelValues(kind).Inc()
}
