package backup

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/kellyelton/maxbackup/internal/backupconfig"
	maxerrors "github.com/kellyelton/maxbackup/internal/errors"
)

// implicitRootExcludes are appended to a job's exclude list whenever its
// source is the root of a filesystem volume, keeping the mirror out of
// directories no backup tool should ever touch.
var implicitRootExcludes = []string{
	"$Recycle.Bin",
	"$Recycle.Bin/**",
	"System Volume Information",
	"System Volume Information/**",
	"*~",
}

// matcher compiles a job's include/exclude globs once and answers whether a
// slash-normalized, source-relative path should be mirrored.
type matcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

// newMatcher compiles job's include/exclude patterns, adding the implicit
// volume-root excludes when isVolumeRoot is true. gobwas/glob's single-pass
// matching with '/' as the separator is the glob dialect this implementation
// commits to: `*` and `?` stay within one path segment, `**` crosses them.
func newMatcher(job backupconfig.BackupJob, isVolumeRoot bool) (*matcher, error) {
	m := &matcher{}

	for _, pattern := range job.Include {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, maxerrors.WrapWithCode(err, maxerrors.ErrValidation, "compiling include pattern %q", pattern)
		}
		m.include = append(m.include, g)
	}

	excludes := job.Exclude
	if isVolumeRoot {
		excludes = append(append([]string{}, excludes...), implicitRootExcludes...)
	}

	for _, pattern := range excludes {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, maxerrors.WrapWithCode(err, maxerrors.ErrValidation, "compiling exclude pattern %q", pattern)
		}
		m.exclude = append(m.exclude, g)
	}

	return m, nil
}

// Matches reports whether relPath (source-root-relative, OS path
// separators) should be mirrored.
func (m *matcher) Matches(relPath string) bool {
	normalized := filepath.ToSlash(relPath)

	included := false
	for _, g := range m.include {
		if g.Match(normalized) {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, g := range m.exclude {
		if g.Match(normalized) {
			return false
		}
	}

	return true
}

// isVolumeRoot reports whether path is the root of a filesystem volume
// (e.g. "/" on POSIX).
func isVolumeRoot(path string) bool {
	clean := filepath.Clean(path)
	return clean == string(filepath.Separator) || strings.TrimSuffix(clean, string(filepath.Separator)) == ""
}
