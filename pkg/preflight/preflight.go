// Package preflight inspects the runner before a deployment touches the
// repository: git itself, the workspace, the build folder and the git host.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	pagepushlog "github.com/pagepush/pagepush/pkg/log"
	"github.com/pagepush/pagepush/pkg/workspace"
	"go.uber.org/multierr"
)

// CheckLevel is the severity of a CheckResult.
type CheckLevel int

const (
	// LevelError stops the deployment.
	LevelError CheckLevel = iota
	// LevelWarn is logged and the deployment continues.
	LevelWarn
	// LevelInfo reports a passing check.
	LevelInfo
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name    string
	Level   CheckLevel
	Message string
	Error   error
}

// Check is one environment inspection.
type Check interface {
	Name() string
	Run(ctx context.Context) CheckResult
}

func failed(name, msg string, err error) CheckResult {
	return CheckResult{Name: name, Level: LevelError, Message: msg, Error: err}
}

func warned(name, msg string, err error) CheckResult {
	return CheckResult{Name: name, Level: LevelWarn, Message: msg, Error: err}
}

func passed(name, msg string) CheckResult {
	return CheckResult{Name: name, Level: LevelInfo, Message: msg}
}

// Config selects the checks NewChecker registers.
type Config struct {
	Skip bool
	// Quiet drops the log line of passing checks.
	Quiet      bool
	RequireGit bool
	// WorkspacePath is the repository checkout.
	WorkspacePath string
	// FolderPath is the build output that will be published.
	FolderPath string
	// WorktreePath is the scratch worktree; the build folder must not overlap it.
	WorktreePath string
	// ServerURL is probed for reachability when set. Failure only warns.
	ServerURL string
}

// Checker runs checks in registration order.
type Checker struct {
	checks []Check
	skip   bool
	quiet  bool
}

// NewChecker registers the checks cfg asks for.
func NewChecker(cfg Config) *Checker {
	c := &Checker{skip: cfg.Skip, quiet: cfg.Quiet}
	if cfg.RequireGit {
		c.checks = append(c.checks, &GitCheck{})
	}
	if cfg.WorkspacePath != "" {
		c.checks = append(c.checks, &WorkspaceCheck{Path: cfg.WorkspacePath})
	}
	if cfg.FolderPath != "" {
		c.checks = append(c.checks, &BuildFolderCheck{
			Path:         cfg.FolderPath,
			Workspace:    cfg.WorkspacePath,
			WorktreePath: cfg.WorktreePath,
		})
	}
	if cfg.ServerURL != "" {
		c.checks = append(c.checks, &NetworkCheck{URL: cfg.ServerURL})
	}
	return c
}

// Run executes every check, logs each result and returns the combined
// error-level failures.
func (c *Checker) Run(ctx context.Context) error {
	if c.skip {
		pagepushlog.Info("preflight checks skipped")
		return nil
	}
	pagepushlog.Progress("running preflight checks")

	var errs error
	warnings := 0
	for _, check := range c.checks {
		res := check.Run(ctx)
		switch res.Level {
		case LevelError:
			pagepushlog.Error("preflight check failed", "check", res.Name, "message", res.Message)
			err := fmt.Errorf("%s: %s", res.Name, res.Message)
			if res.Error != nil {
				err = fmt.Errorf("%s: %s: %w", res.Name, res.Message, res.Error)
			}
			errs = multierr.Append(errs, err)
		case LevelWarn:
			warnings++
			pagepushlog.Warn("preflight check warning", "check", res.Name, "message", res.Message)
		default:
			if !c.quiet {
				pagepushlog.Info("preflight check", "check", res.Name, "message", res.Message)
			}
		}
	}

	if errs != nil {
		return fmt.Errorf("preflight checks failed: %w", errs)
	}
	pagepushlog.Progress("preflight checks passed", "warnings", warnings)
	return nil
}

// minWorktreeRemove is the first git release with `git worktree remove`.
var minWorktreeRemove = [2]int{2, 17}

var gitVersionRe = regexp.MustCompile(`(\d+)\.(\d+)`)

// GitCheck requires git on PATH and warns when it predates worktree removal.
type GitCheck struct{}

func (c *GitCheck) Name() string { return "git" }

func (c *GitCheck) Run(ctx context.Context) CheckResult {
	if _, err := exec.LookPath("git"); err != nil {
		return failed(c.Name(), "git command not found. Please install Git from https://git-scm.com/downloads", err)
	}

	out, err := exec.CommandContext(ctx, "git", "--version").CombinedOutput()
	if err != nil {
		return warned(c.Name(), "git is installed but `git --version` failed", err)
	}
	version := strings.TrimSpace(string(out))
	if !gitVersionAtLeast(version, minWorktreeRemove) {
		return warned(c.Name(), fmt.Sprintf("%s is older than %d.%d; worktree cleanup may fail",
			version, minWorktreeRemove[0], minWorktreeRemove[1]), nil)
	}
	return passed(c.Name(), fmt.Sprintf("git is available (%s)", version))
}

// gitVersionAtLeast parses "git version X.Y.Z..." output. Unparseable
// versions are assumed to be recent.
func gitVersionAtLeast(output string, min [2]int) bool {
	m := gitVersionRe.FindStringSubmatch(output)
	if m == nil {
		return true
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	if major != min[0] {
		return major > min[0]
	}
	return minor >= min[1]
}

// WorkspaceCheck requires an existing directory other than the filesystem
// root. A workspace without .git only warns, since bootstrap initializes one.
type WorkspaceCheck struct {
	Path string
}

func (c *WorkspaceCheck) Name() string { return "workspace" }

func (c *WorkspaceCheck) Run(ctx context.Context) CheckResult {
	if c.Path == "" {
		return passed(c.Name(), "no workspace path specified")
	}
	abs, err := filepath.Abs(c.Path)
	if err != nil {
		return failed(c.Name(), fmt.Sprintf("failed to resolve workspace path: %s", c.Path), err)
	}

	info, err := os.Stat(abs)
	switch {
	case os.IsNotExist(err):
		return failed(c.Name(), fmt.Sprintf("workspace path does not exist: %s", abs), err)
	case err != nil:
		return failed(c.Name(), fmt.Sprintf("cannot access workspace path: %s", abs), err)
	case !info.IsDir():
		return failed(c.Name(), fmt.Sprintf("workspace path is not a directory: %s", abs), errors.New("not a directory"))
	case workspace.IsFilesystemRoot(abs):
		return failed(c.Name(), "workspace cannot be the filesystem root", fmt.Errorf("workspace is %s", abs))
	}

	if _, err := os.Stat(filepath.Join(abs, ".git")); err != nil {
		return warned(c.Name(), fmt.Sprintf("workspace is not a git checkout; a new repository will be initialized in %s", abs), nil)
	}
	return passed(c.Name(), fmt.Sprintf("workspace is accessible: %s", abs))
}

// BuildFolderCheck requires the build output to be a directory distinct from
// the workspace and outside the scratch worktree.
type BuildFolderCheck struct {
	Path         string
	Workspace    string
	WorktreePath string
}

func (c *BuildFolderCheck) Name() string { return "build-folder" }

func (c *BuildFolderCheck) Run(ctx context.Context) CheckResult {
	abs, err := filepath.Abs(c.Path)
	if err != nil {
		return failed(c.Name(), fmt.Sprintf("failed to resolve build folder: %s", c.Path), err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return failed(c.Name(), fmt.Sprintf("build folder does not exist: %s (did the build step run?)", abs), err)
	}
	if !info.IsDir() {
		return failed(c.Name(), fmt.Sprintf("build folder is not a directory: %s", abs), errors.New("not a directory"))
	}
	if c.Workspace != "" {
		if ws, err := filepath.Abs(c.Workspace); err == nil && ws == abs {
			return failed(c.Name(), "build folder cannot be the workspace itself", fmt.Errorf("folder is %s", abs))
		}
	}
	if c.WorktreePath != "" {
		if wt, err := filepath.Abs(c.WorktreePath); err == nil && workspace.PathOverlaps(abs, wt) {
			return failed(c.Name(), fmt.Sprintf("build folder overlaps the deployment worktree %s", wt), errors.New("overlapping paths"))
		}
	}

	if entries, err := os.ReadDir(abs); err == nil && len(entries) == 0 {
		return warned(c.Name(), fmt.Sprintf("build folder is empty: %s; the published branch will be emptied", abs), nil)
	}
	return passed(c.Name(), fmt.Sprintf("build folder is ready: %s", abs))
}

// NetworkCheck sends one HEAD request to the git host. It never fails the
// run: an unreachable host only warns, and fetch or push reports the real error.
type NetworkCheck struct {
	URL string
	// Client defaults to a client with a 5 second timeout.
	Client *http.Client
}

func (c *NetworkCheck) Name() string { return "network" }

func (c *NetworkCheck) Run(ctx context.Context) CheckResult {
	url := c.URL
	if url == "" {
		url = "https://github.com"
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return warned(c.Name(), "failed to create network check request", err)
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return warned(c.Name(), fmt.Sprintf("%s may be unreachable; fetch and push will likely fail", url), err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		pagepushlog.Debug("failed to drain response body", "error", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return warned(c.Name(), fmt.Sprintf("%s answered with status %d", url, resp.StatusCode), fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	return passed(c.Name(), fmt.Sprintf("%s is reachable", url))
}
