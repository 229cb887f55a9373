// Package async provides panic-isolated background execution: SafeGo for
// fire-and-forget tasks (audit fan-out, cache invalidation), WorkerPool for
// bounded concurrency, and Batch for fanning a slice of items across a
// temporary pool (legacy role migration).
package async
