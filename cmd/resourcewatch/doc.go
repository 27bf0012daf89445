// Package main hosts the resourcewatch service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, resource CRUD,
//     bulk ZIP ingestion, job progress, screenshot, and feed endpoints.
//     Archive uploads are staged in the blob store, recorded as pending
//     ingestion jobs, and enqueued for background processing.
//   - Ingestion: jobs flow through a bounded in-memory queue and are fanned
//     out to a fixed runner pool sized by config.Ingest.Workers. Each runner
//     extracts the first CSV member of the archive, validates and
//     deduplicates URLs, bulk-inserts survivors, mirrors per-line progress
//     to the ephemeral progress store, and writes the terminal job record.
//   - Monitoring: internal/monitor sweeps every registered resource on a
//     fixed interval with bounded concurrency, applying each observation as
//     a per-resource transaction and emitting status_changed feed events on
//     availability flips. internal/evict removes resources whose
//     consecutive-failure counter reaches the configured threshold.
//   - Persistence & fanout: the registry lives in Postgres (in-memory for
//     local runs), progress snapshots in Redis (or memory), staged archives
//     in the configured blob backend (memory/local/GCS). Feed events are
//     buffered in-process and optionally mirrored to Pub/Sub.
//   - Configuration & plumbing: Viper populates config from env/files with
//     the RW prefix; zap provides structured logging; Prometheus metrics
//     are exported via the metrics middleware and /metrics handler.
//
// Run locally: go run ./cmd/resourcewatch -config config.yaml (or rely
// solely on env overrides). The process reacts to SIGTERM for a graceful
// drain of the HTTP server, schedulers, and ingestion workers.
package main
