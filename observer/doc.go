// Package observer provides pipeline.Observer implementations:
//
//   - LogObserver: structured zap logs for every run and stage, flagging
//     image lifecycle failures.
//   - MetricsObserver: Prometheus counters and histograms per pipeline and
//     stage, registered on a caller-supplied prometheus.Registerer.
//   - SQLObserver: persists each run and its stages (pipeline_run,
//     pipeline_run_stage) through database/sql so runs can be inspected
//     afterwards. Schema is applied with Migrate; the CLI uses sqlite.
//
// Combine them with pipeline.MultiObserver.
package observer
