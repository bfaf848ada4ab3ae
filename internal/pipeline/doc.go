// Package pipeline normalizes a raw access-log store: it selects the newest
// input, drains it batch by batch through classification and geo enrichment,
// and publishes the normalized store as a full replacement of the previous one.
//
// Batches are processed strictly one after another; only classification
// inside a batch runs in parallel. A run ends in exactly one of three
// statuses: success, empty (no input found) or failed, the latter carrying a
// StageError that names the stage and batch offset.
package pipeline
