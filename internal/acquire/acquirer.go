// Package acquire obtains a local read-only snapshot of the board-definition
// source tree from a prioritized list of mirrors.
package acquire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/firmforge/catalog-sync/internal/config"
	"github.com/firmforge/catalog-sync/internal/git"
	"github.com/firmforge/catalog-sync/internal/versions"
)

// State describes the acquisition state machine for one run:
// Pending -> (per mirror) Retrying(n) -> Succeeded | Exhausted -> next mirror,
// and Failed once every mirror has exhausted its retry budget.
type State int

// Acquisition states
const (
	StatePending State = iota
	StateRetrying
	StateSucceeded
	StateExhausted
	StateFailed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Mirror identifies one location offering a copy of the source tree.
type Mirror struct {
	URL    string
	Branch string
	Tag    string
}

// Options configures retry behavior for the acquirer.
type Options struct {
	// RetryBudget is the number of fetch attempts per mirror
	RetryBudget int

	// RetryBackoff is the fixed pause between attempts
	RetryBackoff time.Duration

	// AttemptTimeout is the hard timeout for a single fetch attempt
	AttemptTimeout time.Duration
}

// AcquisitionError indicates that every mirror exhausted its retry budget.
type AcquisitionError struct {
	// Mirrors lists the locations that were attempted, in order
	Mirrors []string

	// Last is the error returned by the final attempt
	Last error
}

// Error implements the error interface
func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("all %d mirrors exhausted: %v", len(e.Mirrors), e.Last)
}

// Unwrap returns the last attempt error
func (e *AcquisitionError) Unwrap() error {
	return e.Last
}

// Snapshot is a scoped local copy of the source tree. Close removes it;
// callers must always call Close, on success and failure paths alike.
type Snapshot struct {
	// Root is the directory holding the checked-out tree
	Root string

	// Mirror is the location the snapshot was fetched from
	Mirror string

	baseDir   string
	gitClient git.Client
	repoInfo  *git.RepositoryInfo
	closeOnce sync.Once
}

// Close removes the snapshot directory and all fetch artifacts.
func (s *Snapshot) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.repoInfo != nil && s.gitClient != nil {
			if cleanupErr := s.gitClient.Cleanup(context.Background(), s.repoInfo); cleanupErr != nil {
				slog.Debug("Repository cleanup failed", "error", cleanupErr)
			}
			s.repoInfo = nil
		}
		err = os.RemoveAll(s.baseDir)
	})
	return err
}

// Acquirer fetches source-tree snapshots with bounded retries per mirror.
type Acquirer struct {
	client git.Client
	opts   Options
	log    *slog.Logger
}

// New creates an Acquirer using the given git client.
func New(client git.Client, opts Options, log *slog.Logger) *Acquirer {
	return &Acquirer{
		client: client,
		opts:   opts,
		log:    log,
	}
}

// Acquire walks the mirror list in order, attempting a shallow fetch with up
// to RetryBudget tries per mirror, and returns the first snapshot obtained.
// It returns an AcquisitionError only after every mirror is exhausted. The
// temporary snapshot directory is removed on every failure path.
func (a *Acquirer) Acquire(ctx context.Context, mirrors []Mirror) (*Snapshot, error) {
	if len(mirrors) == 0 {
		return nil, fmt.Errorf("at least one mirror is required")
	}

	baseDir, err := os.MkdirTemp("", "catalog-sync-")
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	attempted := make([]string, 0, len(mirrors))
	var lastErr error

	for i, mirror := range mirrors {
		attempted = append(attempted, mirror.URL)
		a.log.Info("Acquiring source tree",
			"mirror", mirror.URL,
			"state", StatePending,
			"retry_budget", a.opts.RetryBudget)

		snapshot, err := a.acquireFromMirror(ctx, mirror, baseDir, i)
		if err == nil {
			a.log.Info("Source tree acquired",
				"mirror", mirror.URL,
				"state", StateSucceeded,
				"root", snapshot.Root)
			return snapshot, nil
		}

		lastErr = err
		a.log.Warn("Retry budget exhausted for mirror",
			"mirror", mirror.URL,
			"state", StateExhausted,
			"error", err)

		if ctx.Err() != nil {
			break
		}
	}

	// Guaranteed removal on the failure path
	if removeErr := os.RemoveAll(baseDir); removeErr != nil {
		a.log.Warn("Failed to remove snapshot directory", "dir", baseDir, "error", removeErr)
	}

	a.log.Error("Source tree acquisition failed",
		"state", StateFailed,
		"mirrors", len(attempted))
	return nil, &AcquisitionError{Mirrors: attempted, Last: lastErr}
}

// acquireFromMirror runs the bounded retry loop for a single mirror.
func (a *Acquirer) acquireFromMirror(ctx context.Context, mirror Mirror, baseDir string, index int) (*Snapshot, error) {
	attempt := 0

	operation := func() (*Snapshot, error) {
		attempt++
		if attempt > 1 {
			a.log.Info("Retrying mirror fetch",
				"mirror", mirror.URL,
				"state", StateRetrying,
				"attempt", attempt)
		}

		dir := filepath.Join(baseDir, fmt.Sprintf("mirror-%d-attempt-%d", index, attempt))
		snapshot, err := a.fetch(ctx, mirror, baseDir, dir)
		if err != nil {
			_ = os.RemoveAll(dir)
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			a.log.Warn("Mirror fetch attempt failed",
				"mirror", mirror.URL,
				"attempt", attempt,
				"error", err)
			return nil, err
		}
		return snapshot, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(a.opts.RetryBackoff)),
		backoff.WithMaxTries(uint(a.opts.RetryBudget)), // #nosec G115 -- budget is a small positive config value
	)
}

// fetch performs one bounded-timeout fetch attempt into dir.
func (a *Acquirer) fetch(ctx context.Context, mirror Mirror, baseDir, dir string) (*Snapshot, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.opts.AttemptTimeout)
	defer cancel()

	if localPath, ok := localMirrorPath(mirror.URL); ok {
		if err := copyTree(attemptCtx, localPath, dir); err != nil {
			return nil, fmt.Errorf("failed to snapshot local mirror: %w", err)
		}
		return &Snapshot{Root: dir, Mirror: mirror.URL, baseDir: baseDir}, nil
	}

	tag := mirror.Tag
	if tag == config.TagLatest {
		resolved, err := a.resolveLatestTag(attemptCtx, mirror.URL)
		if err != nil {
			return nil, err
		}
		a.log.Debug("Resolved latest release tag", "mirror", mirror.URL, "tag", resolved)
		tag = resolved
	}

	repoInfo, err := a.client.Clone(attemptCtx, &git.CloneConfig{
		URL:    mirror.URL,
		Branch: mirror.Branch,
		Tag:    tag,
		Dir:    dir,
	})
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Root:      repoInfo.Dir,
		Mirror:    mirror.URL,
		baseDir:   baseDir,
		gitClient: a.client,
		repoInfo:  repoInfo,
	}, nil
}

// resolveLatestTag picks the highest release tag offered by the mirror.
func (a *Acquirer) resolveLatestTag(ctx context.Context, url string) (string, error) {
	tags, err := a.client.ListTags(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to list release tags: %w", err)
	}
	latest := versions.Latest(tags)
	if latest == "" {
		return "", fmt.Errorf("mirror %s offers no release tags", url)
	}
	return latest, nil
}

// localMirrorPath reports whether url names a local directory mirror and
// returns its filesystem path.
func localMirrorPath(url string) (string, bool) {
	path := strings.TrimPrefix(url, "file://")
	if path != url {
		return path, true
	}
	if strings.Contains(url, "://") || strings.HasPrefix(url, "git@") {
		return "", false
	}
	info, err := os.Stat(url)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return url, true
}

// copyTree copies a directory tree, skipping .git and symlinks.
func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0750)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

// copyFile copies a single regular file.
func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
