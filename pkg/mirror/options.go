package mirror

// Options are the per-run switches that do not belong to the job definition.
type Options struct {
	// DryRun reports what would change without touching the destination.
	DryRun bool
	// ContinueOnError records per-file failures and keeps going instead of
	// aborting the walk on the first one.
	ContinueOnError bool
}
