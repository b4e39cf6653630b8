// Package scheduler runs periodic jobs with robfig/cron. The start command uses it to
// trigger a replication reconciliation cycle on the sync.schedule expression.
package scheduler
