package mirror

// Stats counts the outcome of one mirror operation. Counters only ever
// increase during a run.
type Stats struct {
	Copied  int
	Skipped int
	Deleted int
	Failed  int

	// BytesCopied is the payload volume actually written (zero in dry-run).
	BytesCopied int64
}

// Add folds another Stats into this one. Used by callers aggregating a run
// summary across (job, source) pairs.
func (s *Stats) Add(other Stats) {
	s.Copied += other.Copied
	s.Skipped += other.Skipped
	s.Deleted += other.Deleted
	s.Failed += other.Failed
	s.BytesCopied += other.BytesCopied
}

// HasFailures reports whether any per-file operation failed.
func (s *Stats) HasFailures() bool {
	return s.Failed > 0
}
