// Package gbforecast is a config-driven pipeline that forecasts hourly energy
// consumption with gradient-boosted regression trees.
//
// A single YAML file (config/config.yaml) drives every command. Raw CSV,
// JSON, parquet or xlsx files are ingested eagerly or in chunks, cleaned,
// validated, preprocessed and turned into calendar, lag and rolling
// features. A histogram-based boosting model is trained on a chronological
// split, optionally after a grid or random hyperparameter search scored with
// time-series cross-validation, and saved as a versioned artifact together
// with the fitted data stages.
//
// # Quick Start
//
//	go run ./cmd/forecast train --config config/config.yaml
//	go run ./cmd/forecast forecast --config config/config.yaml --horizon 24
//	go run ./cmd/forecast serve --config config/config.yaml
//
// # Packages
//
//   - config: YAML configuration, defaults and validation
//   - ingest: file discovery, readers and chunked sources
//   - frame: the column-oriented table passed between stages
//   - clean, validate, preprocessing, features: the data stages
//   - split, tuning: chronological splits, cross-validation and search
//   - gbt: gradient-boosted trees
//   - metrics: regression metrics
//   - artifact, report, tracking: model bundles, evaluation reports, run logs
//   - pipeline: the training, inference and forecasting pipelines
//   - server: the HTTP API
//   - core/model, core/parallel: shared interfaces, persistence, worker pools
//   - pkg/errors, pkg/log: typed errors and structured logging
//
// # Performance
//
// Training parallelises histogram construction and split search across
// features; prediction parallelises across rows for inputs over 1000 rows.
// n_jobs of -1 uses every CPU core.
package gbforecast
