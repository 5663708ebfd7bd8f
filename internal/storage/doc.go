// Package storage is the durable state layer for the scheduler.
//
// It owns:
//   - Daily quotas (written once per account and date, then read-only)
//   - Session plans (rewritten per date, completion bumped incrementally)
//   - Reply records and per-day replied-author rows, both guarded by
//     UNIQUE constraints so double-acting is impossible even if the
//     application retries
//   - Daily action counters (increment-or-insert upserts)
package storage
