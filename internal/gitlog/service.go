package gitlog

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devgraph/devgraph-go/internal/errs"
	"github.com/devgraph/devgraph-go/internal/models"
)

// Service streams commit history from a local working copy by shelling
// out to git. The subprocess handle is owned here and never shared.
type Service struct {
	repoPath string
	logger   *logrus.Logger
}

func NewService(repoPath string, logger *logrus.Logger) *Service {
	return &Service{repoPath: repoPath, logger: logger}
}

// Verify checks the repository is readable and not shallow. Shallow or
// corrupt repositories fail with a repository error (exit code 3).
func (s *Service) Verify(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = s.repoPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return errs.Wrapf(err, errs.KindRepository, "not a git repository: %s (%s)", s.repoPath, strings.TrimSpace(string(out)))
	}

	cmd = exec.CommandContext(ctx, "git", "rev-parse", "--is-shallow-repository")
	cmd.Dir = s.repoPath
	out, err := cmd.Output()
	if err != nil {
		return errs.Wrapf(err, errs.KindRepository, "repository unreadable: %s", s.repoPath)
	}
	if strings.TrimSpace(string(out)) == "true" {
		return errs.Newf(errs.KindRepository, "shallow repository at %s: full history required", s.repoPath)
	}
	return nil
}

// Branch returns the current branch name.
func (s *Service) Branch(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = s.repoPath
	out, err := cmd.Output()
	if err != nil {
		return "", errs.Wrap(err, errs.KindRepository, "failed to resolve current branch")
	}
	return strings.TrimSpace(string(out)), nil
}

// ListOptions scope a history listing.
type ListOptions struct {
	Since time.Time
	Until time.Time
	Limit int
}

// ListCommits yields commits oldest-first by committer timestamp, with
// per-commit file deltas (rename and copy detection enabled). The
// stream is lazy: commits are parsed as git emits them, and consumers
// exert backpressure through the channel. The error channel delivers
// at most one error after the commit channel closes.
func (s *Service) ListCommits(ctx context.Context, opts ListOptions) (<-chan models.Commit, <-chan error) {
	commits := make(chan models.Commit, 64)
	errc := make(chan error, 1)

	args := []string{
		"log", "--reverse",
		"-M", "-C", "--find-renames",
		"--numstat", "--name-status",
		"--date=iso-strict",
		"--pretty=format:" + headerFormat,
	}
	if !opts.Since.IsZero() {
		args = append(args, "--since="+opts.Since.UTC().Format(time.RFC3339))
	}
	if !opts.Until.IsZero() {
		args = append(args, "--until="+opts.Until.UTC().Format(time.RFC3339))
	}
	if opts.Limit > 0 {
		args = append(args, fmt.Sprintf("--max-count=%d", opts.Limit))
	}

	go func() {
		defer close(commits)
		defer close(errc)

		branch, err := s.Branch(ctx)
		if err != nil {
			errc <- err
			return
		}

		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = s.repoPath

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errc <- errs.Wrap(err, errs.KindRepository, "failed to open git log pipe")
			return
		}
		if err := cmd.Start(); err != nil {
			errc <- errs.Wrap(err, errs.KindRepository, "failed to start git log")
			return
		}

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		parser := newLogParser(branch)
		for scanner.Scan() {
			if commit, ok := parser.feed(scanner.Text()); ok {
				select {
				case commits <- commit:
				case <-ctx.Done():
					cmd.Process.Kill()
					cmd.Wait()
					errc <- errs.Wrap(ctx.Err(), errs.KindCancelled, "commit listing cancelled")
					return
				}
			}
		}
		if commit, ok := parser.flush(); ok {
			select {
			case commits <- commit:
			case <-ctx.Done():
			}
		}

		if err := scanner.Err(); err != nil {
			cmd.Wait()
			errc <- errs.Wrap(err, errs.KindRepository, "failed scanning git log output")
			return
		}
		if err := cmd.Wait(); err != nil {
			errc <- errs.Wrapf(err, errs.KindRepository, "git log failed in %s", s.repoPath)
		}
	}()

	return commits, errc
}

// FileChanges returns the deltas of a single commit, on demand.
func (s *Service) FileChanges(ctx context.Context, hash string) ([]models.FileDelta, error) {
	cmd := exec.CommandContext(ctx, "git", "show",
		"-M", "-C", "--find-renames",
		"--numstat", "--name-status",
		"--pretty=format:"+headerFormat,
		hash)
	cmd.Dir = s.repoPath

	out, err := cmd.Output()
	if err != nil {
		return nil, errs.Wrapf(err, errs.KindRepository, "git show failed for %s", hash)
	}

	parser := newLogParser("")
	for _, line := range strings.Split(string(out), "\n") {
		parser.feed(line)
	}
	commit, ok := parser.flush()
	if !ok {
		return nil, errs.Newf(errs.KindRepository, "no commit parsed for %s", hash)
	}
	return commit.Deltas, nil
}

// Blame attributes each line of path at a commit to its author. Used
// only by on-demand UI routes, never by the pipeline.
func (s *Service) Blame(ctx context.Context, path, atCommit string) ([]models.BlameLine, error) {
	args := []string{"blame", "--line-porcelain"}
	if atCommit != "" {
		args = append(args, atCommit)
	}
	args = append(args, "--", path)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.repoPath

	out, err := cmd.Output()
	if err != nil {
		return nil, errs.Wrapf(err, errs.KindRepository, "git blame failed for %s", path)
	}
	return parseBlame(string(out)), nil
}
