package filter

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/zap"
)

// Filter decides whether a path is eligible for inspection. Checks run
// cheapest first and the first failing check wins; every rejection is
// logged at debug level with its reason.
type Filter struct {
	excludedRoots []string
	globs         []glob.Glob
	maxSizeBytes  int64
	foldCase      bool
	debounce      *Debounce
	log           *zap.Logger
}

// Config represents the filter rules
type Config struct {
	ExcludedRoots []string
	ExcludeGlobs  []string
	MaxFileSizeMB int64
	Debounce      *Debounce
}

// New compiles the exclusion rules. Excluded-root comparison folds
// case on Windows and is case-sensitive elsewhere; the decision is
// made once here, not per call.
func New(cfg Config, log *zap.Logger) (*Filter, error) {
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}

	f := &Filter{
		maxSizeBytes: cfg.MaxFileSizeMB << 20,
		foldCase:     runtime.GOOS == "windows",
		debounce:     cfg.Debounce,
		log:          log,
	}

	for _, root := range cfg.ExcludedRoots {
		root = filepath.Clean(root)
		if f.foldCase {
			root = strings.ToUpper(root)
		}
		f.excludedRoots = append(f.excludedRoots, root)
	}

	for _, pattern := range cfg.ExcludeGlobs {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude glob %q: %w", pattern, err)
		}
		f.globs = append(f.globs, g)
	}

	return f, nil
}

// Eligible reports whether the file at path should be inspected.
func (f *Filter) Eligible(path string) bool {
	path = filepath.Clean(path)

	if f.underExcludedRoot(path) {
		f.log.Debug("path under excluded root", zap.String("path", path))
		return false
	}

	if f.matchesExcludeGlob(path) {
		f.log.Debug("path matches exclude glob", zap.String("path", path))
		return false
	}

	// Lstat so a symlink is judged by itself, not by its target
	info, err := os.Lstat(path)
	if err != nil {
		f.log.Debug("stat failed", zap.String("path", path), zap.Error(err))
		return false
	}
	if !info.Mode().IsRegular() {
		f.log.Debug("not a regular file",
			zap.String("path", path),
			zap.String("mode", info.Mode().String()))
		return false
	}

	if info.Size() > f.maxSizeBytes {
		f.log.Debug("file exceeds size ceiling",
			zap.String("path", path),
			zap.Int64("size_bytes", info.Size()),
			zap.Int64("max_bytes", f.maxSizeBytes))
		return false
	}

	if f.debounce != nil && !f.debounce.ShouldInspect(path, time.Now()) {
		f.log.Debug("debounced", zap.String("path", path))
		return false
	}

	return true
}

// underExcludedRoot checks whether path sits at or below any excluded
// root. Component-aware: /tmp/quarantine2 is not under /tmp/quarantine.
func (f *Filter) underExcludedRoot(path string) bool {
	cmp := path
	if f.foldCase {
		cmp = strings.ToUpper(cmp)
	}
	for _, root := range f.excludedRoots {
		if cmp == root || strings.HasPrefix(cmp, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (f *Filter) matchesExcludeGlob(path string) bool {
	if len(f.globs) == 0 {
		return false
	}
	base := filepath.Base(path)
	slashed := filepath.ToSlash(path)
	for _, g := range f.globs {
		if g.Match(base) || g.Match(slashed) {
			return true
		}
	}
	return false
}
