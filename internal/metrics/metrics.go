// Package metrics exposes the pipeline's Prometheus collectors. One
// counter/gauge/histogram family per stage, all under the
// kenshin_ingest_* namespace, registered via promauto exactly as the
// teacher project registers its log_capturer_* family.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FilesScannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kenshin_ingest_files_scanned_total",
			Help: "Total files discovered by Shared-Scan, by extension.",
		},
		[]string{"ext"},
	)

	ContentHashedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kenshin_ingest_content_hashed_total",
			Help: "Total files whose SHA-256 was computed by Content-Hash.",
		},
	)

	ZipProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kenshin_ingest_zip_probes_total",
			Help: "Total ZIP-Probe invocations, by outcome note.",
		},
		[]string{"note"},
	)

	AutoJudgementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kenshin_ingest_auto_judgements_total",
			Help: "Total Auto-Judge classifications, by judgement.",
		},
		[]string{"judgement"},
	)

	StageCopiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kenshin_ingest_stage_copied_total",
			Help: "Total Stage-Copy outcomes.",
		},
		[]string{"outcome"},
	)

	ZipImportTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kenshin_ingest_zip_import_total",
			Help: "Total ZIP-Import outcomes, by action and structure_status.",
		},
		[]string{"action", "structure_status"},
	)

	XMLExtractTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kenshin_ingest_xml_extract_total",
			Help: "Total XML-Extract outcomes, by resulting status.",
		},
		[]string{"status"},
	)

	ItemExtractTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kenshin_ingest_item_extract_total",
			Help: "Total Item-Extract rows written, by status.",
		},
		[]string{"status"},
	)

	NormalizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kenshin_ingest_normalize_total",
			Help: "Total Normalize-Values outcomes, by value_type and status.",
		},
		[]string{"value_type", "status"},
	)

	ProcessLogsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kenshin_ingest_process_logs_total",
			Help: "Total xml_process_logs rows written, by step and result.",
		},
		[]string{"step", "result"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kenshin_ingest_stage_duration_seconds",
			Help:    "Wall-clock duration of a single stage invocation.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"stage"},
	)

	RunErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kenshin_ingest_run_errors_total",
			Help: "Per-run error counter, mirrors import_runs summary totals.",
		},
		[]string{"stage"},
	)

	PasswordAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kenshin_ingest_password_attempts_total",
			Help: "ZIP password candidate attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	DiskSpacePercentFree = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kenshin_ingest_disk_space_percent_free",
			Help: "Percent free space on a monitored path, sampled before heavy extraction.",
		},
		[]string{"path"},
	)
)

// Handler returns the /metrics HTTP handler, wired into internal/app's router.
func Handler() http.Handler {
	return promhttp.Handler()
}
