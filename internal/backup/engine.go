package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/afero"

	"github.com/kellyelton/maxbackup/internal/backupconfig"
	maxerrors "github.com/kellyelton/maxbackup/internal/errors"
	"github.com/kellyelton/maxbackup/internal/pathexpand"
	"github.com/kellyelton/maxbackup/pkg/logger"
)

// cloudPlaceholderPattern matches the dotfile names cloud-sync clients
// (OneDrive, Dropbox, etc.) leave behind for files that are not actually
// materialized on disk.
var cloudPlaceholderPattern = regexp.MustCompile(`^\.[0-9A-Fa-f-]{32,36}$`)

const (
	throttleInterval = 500 * time.Millisecond
	throttlePause    = 10 * time.Millisecond
	reportInterval   = 30 * time.Second
)

// Engine mirrors backup jobs against an afero.Fs, so production code runs
// against the real disk and tests run against afero.NewMemMapFs().
type Engine struct {
	fs     afero.Fs
	probe  AttributeProbe
	logger logger.Logger
}

// NewEngine constructs an Engine. A nil probe defaults to NoAttributeProbe.
func NewEngine(fs afero.Fs, probe AttributeProbe, log logger.Logger) *Engine {
	if probe == nil {
		probe = NoAttributeProbe{}
	}
	return &Engine{fs: fs, probe: probe, logger: log}
}

// RunJob mirrors job's source tree into its destination tree. It never
// returns an error for ordinary per-file failures — those are folded into
// the Result's counters — only for job-level setup failures like an
// unparsable glob pattern.
func (e *Engine) RunJob(ctx context.Context, job backupconfig.BackupJob, homeDir string) (Result, error) {
	var result Result

	source := pathexpand.Plain(job.Source, homeDir)
	destination := pathexpand.Plain(job.Destination, homeDir)

	sourceInfo, err := e.fs.Stat(source)
	if err != nil || !sourceInfo.IsDir() {
		e.logger.Warn("backup source does not exist, skipping job",
			logger.String("job", job.Name), logger.String("source", source))
		return result, nil
	}

	if err := e.fs.MkdirAll(destination, 0o755); err != nil {
		e.logger.Error("failed to create destination directory",
			logger.String("job", job.Name), logger.String("destination", destination), logger.Error(err))
		return result, nil
	}

	m, err := newMatcher(job, isVolumeRoot(source))
	if err != nil {
		return result, err
	}

	candidates, err := e.enumerate(ctx, source, m)
	if err != nil {
		return result, err
	}
	if ctx.Err() != nil {
		e.logger.Info("backup job cancelled before copy began", logger.String("job", job.Name))
		return result, nil
	}

	e.copyAll(ctx, job, source, destination, candidates, &result)

	logSummary(e.logger, job, result)

	return result, nil
}

// enumerate walks source in lexical directory order, keeping only paths
// the matcher accepts and that survive the cloud-placeholder post-filter.
// A cancelled walk returns nil, nil, as does a walk with no matches; callers
// tell the two apart by checking ctx.
func (e *Engine) enumerate(ctx context.Context, source string, m *matcher) ([]string, error) {
	var candidates []string

	walkErr := afero.Walk(e.fs, source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(source, path)
		if relErr != nil {
			return nil
		}

		if !m.Matches(rel) {
			return nil
		}

		if e.shouldSkipCloudPlaceholder(path) {
			return nil
		}

		candidates = append(candidates, rel)
		return nil
	})

	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, maxerrors.WrapWithCode(walkErr, maxerrors.ErrIO, "enumerating source tree")
	}

	return candidates, nil
}

func (e *Engine) shouldSkipCloudPlaceholder(path string) bool {
	name := filepath.Base(path)
	if !cloudPlaceholderPattern.MatchString(name) {
		return false
	}
	if len(name) != 33 && len(name) != 37 {
		return false
	}

	isSystem, ok := e.probe.HasSystemAttribute(path)
	if !ok {
		return false
	}
	return isSystem
}

// copyAll copies every candidate, throttling every ~500ms of wall-clock
// processing and logging progress every ~30s.
func (e *Engine) copyAll(ctx context.Context, job backupconfig.BackupJob, source, destination string, candidates []string, result *Result) {
	total := len(candidates)
	lastThrottle := time.Now()
	lastReport := time.Now()

	for i, rel := range candidates {
		if ctx.Err() != nil {
			return
		}

		e.copyOne(source, destination, rel, result)

		if time.Since(lastThrottle) >= throttleInterval {
			time.Sleep(throttlePause)
			lastThrottle = time.Now()
		}

		if time.Since(lastReport) >= reportInterval {
			pct := float64(i+1) / float64(total) * 100
			e.logger.Info("backup progress", logger.String("job", job.Name), logger.Float64("percent", pct))
			lastReport = time.Now()
		}
	}
}

func (e *Engine) copyOne(source, destination, rel string, result *Result) {
	srcPath := filepath.Join(source, rel)
	dstPath := filepath.Join(destination, rel)

	srcInfo, err := e.fs.Stat(srcPath)
	if err != nil {
		result.MissingCount++
		return
	}

	if err := e.fs.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		result.ErrorCount++
		e.logger.Error("failed to create destination parent directory", logger.String("path", dstPath), logger.Error(err))
		return
	}

	if dstInfo, statErr := e.fs.Stat(dstPath); statErr == nil {
		e.clearProtectiveAttributes(dstPath)
		if dstInfo.ModTime().Equal(srcInfo.ModTime()) {
			result.UpToDateCount++
			return
		}
	}

	size, err := e.copyFile(srcPath, dstPath)
	if err != nil {
		if os.IsNotExist(err) {
			result.MissingCount++
			return
		}
		e.logger.Warn("failed to copy file", logger.String("source", srcPath), logger.String("destination", dstPath), logger.Error(err))
		result.ErrorCount++
		return
	}

	result.BackupCount++
	result.BackupByteCount += uint64(size)

	if err := e.fs.Chtimes(dstPath, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		e.logger.Warn("failed to propagate timestamps", logger.String("destination", dstPath), logger.Error(err))
	}
}

// clearProtectiveAttributes best-effort clears a destination file's
// read-only bit before it is overwritten. POSIX has no separate "hidden"
// attribute to clear.
func (e *Engine) clearProtectiveAttributes(path string) {
	info, err := e.fs.Stat(path)
	if err != nil {
		return
	}
	if err := e.fs.Chmod(path, info.Mode()|0o200); err != nil {
		e.logger.Warn("failed to clear protective attributes", logger.String("path", path), logger.Error(err))
	}
}

func (e *Engine) copyFile(srcPath, dstPath string) (int64, error) {
	src, err := e.fs.Open(srcPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := e.fs.Create(dstPath)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	return io.Copy(dst, src)
}

func logSummary(log logger.Logger, job backupconfig.BackupJob, result Result) {
	log.Info(result.Summary(),
		logger.String("job", job.Name),
		logger.Uint64("backupCount", result.BackupCount),
		logger.Uint64("upToDateCount", result.UpToDateCount))

	if result.ErrorCount > 0 {
		log.Warn("backup job finished with errors",
			logger.String("job", job.Name), logger.Uint64("errorCount", result.ErrorCount))
	}
	if result.MissingCount > 0 {
		log.Warn("backup job finished with missing files",
			logger.String("job", job.Name), logger.Uint64("missingCount", result.MissingCount))
	}
}
