// Package progress carries run and stage progress from the pipelines to the
// ops API and to persistent run bookkeeping. Producers emit Events through a
// non-blocking Hub that batches them on a background goroutine and fans them
// out to sinks; the Tracker sink keeps the latest snapshot of every run.
package progress
