// Package jobs runs one-shot background jobs whose status is shared through
// Redis, so that a job seeded by several replicas runs once and a failed run
// is retried on the next start.
package jobs
