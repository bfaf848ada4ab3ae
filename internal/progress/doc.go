// Package progress carries pipeline milestones from the orchestrator to
// pluggable sinks. Emitters hand events to a Hub that never blocks; a
// background goroutine batches them and fans each batch out to every sink.
package progress
