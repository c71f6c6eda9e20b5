// Package backup implements the mirror engine: given a job and a resolved
// home directory, it walks the source tree, applies include/exclude globs,
// and copies changed files to the destination tree while tracking progress.
package backup

import "fmt"

// Result accumulates the outcome of one run_job call. Every counter is a
// uint64 so long-running mirrors of large trees never wrap around, unlike
// the 32-bit counters the source implementation used.
type Result struct {
	BackupCount     uint64
	UpToDateCount   uint64
	MissingCount    uint64
	ErrorCount      uint64
	BackupByteCount uint64
}

// Total returns the number of files the engine reached a terminal decision
// for.
func (r Result) Total() uint64 {
	return r.BackupCount + r.UpToDateCount + r.MissingCount + r.ErrorCount
}

// AllUpToDate reports whether the run copied nothing because every
// candidate file already matched its destination counterpart.
func (r Result) AllUpToDate() bool {
	return r.BackupCount == 0 && r.UpToDateCount > 0
}

// Summary renders the human-readable line logged at the end of a job.
func (r Result) Summary() string {
	size := humanBytes(r.BackupByteCount)
	if r.AllUpToDate() {
		return fmt.Sprintf("all %d files already up to date", r.UpToDateCount)
	}
	return fmt.Sprintf("copied %d files (%s), %d already up to date", r.BackupCount, size, r.UpToDateCount)
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
