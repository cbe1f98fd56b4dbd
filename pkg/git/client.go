// Package git is a thin, typed layer over the system git CLI. Every call goes
// through a Runner so the branch-publish protocol can be exercised against a
// recording fake as well as a real repository.
package git

import (
	"context"
	"fmt"
	"strings"
)

// Client runs git commands in one directory.
type Client struct {
	// Dir is the working directory for every command.
	Dir string

	// Runner executes the commands. Defaults to NewExecRunner().
	Runner Runner
}

// NewClient creates a client for dir backed by the system git binary.
func NewClient(dir string) *Client {
	return &Client{Dir: dir, Runner: NewExecRunner()}
}

// NewClientWithRunner creates a client for dir backed by r.
func NewClientWithRunner(dir string, r Runner) *Client {
	return &Client{Dir: dir, Runner: r}
}

// In returns a client for another directory sharing the same runner.
func (c *Client) In(dir string) *Client {
	return &Client{Dir: dir, Runner: c.Runner}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	r := c.Runner
	if r == nil {
		r = NewExecRunner()
	}
	return r.Run(ctx, c.Dir, "git", args...)
}

// InitRepository runs git init. Re-initialising an existing repository is safe.
func (c *Client) InitRepository(ctx context.Context) error {
	_, err := c.run(ctx, "init", "--quiet")
	return err
}

// SetConfig sets a repository-local config value.
func (c *Client) SetConfig(ctx context.Context, key, value string) error {
	_, err := c.run(ctx, "config", key, value)
	return err
}

// GetHeadSHA returns the commit HEAD points to.
func (c *Client) GetHeadSHA(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "HEAD")
}

// Checkout switches the work tree to ref.
func (c *Client) Checkout(ctx context.Context, ref string) error {
	_, err := c.run(ctx, "checkout", "--quiet", ref)
	return err
}

// AddAll stages every change under Dir, deletions included. Ignore rules are
// overridden: every file in the tree is meant to be recorded.
func (c *Client) AddAll(ctx context.Context) error {
	_, err := c.run(ctx, "add", "--all", "--force", ".")
	return err
}

// HasChanges reports whether the work tree or index differs from HEAD.
func (c *Client) HasChanges(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// Commit records the index with message and returns the new HEAD.
func (c *Client) Commit(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("commit message is required")
	}
	if _, err := c.run(ctx, "commit", "--quiet", "-m", message); err != nil {
		return "", err
	}
	return c.GetHeadSHA(ctx)
}

// EmptyTree writes the empty tree object and returns its id.
func (c *Client) EmptyTree(ctx context.Context) (string, error) {
	// mktree with nothing on stdin writes a tree with no entries.
	out, err := c.run(ctx, "mktree")
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("git mktree printed no tree id")
	}
	return out, nil
}

// CommitTree creates a parentless commit of tree and returns its id. No ref,
// index or work tree is touched.
func (c *Client) CommitTree(ctx context.Context, tree, message string) (string, error) {
	if tree == "" {
		return "", fmt.Errorf("tree id is required")
	}
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("commit message is required")
	}
	out, err := c.run(ctx, "commit-tree", tree, "-m", message)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("git commit-tree printed no commit id")
	}
	return out, nil
}

// RemoteHeadCount asks remote how many branches are named exactly branch.
// The answer is 0 or 1; callers compare it numerically.
func (c *Client) RemoteHeadCount(ctx context.Context, remote, branch string) (int, error) {
	out, err := c.run(ctx, "ls-remote", "--heads", remote, branch)
	if err != nil {
		return 0, err
	}
	return CountHeads(out, branch), nil
}

// CountHeads counts ls-remote lines naming refs/heads/<branch> exactly.
// ls-remote matches patterns on trailing path components, so a query for
// "pages" also lists "refs/heads/docs/pages"; those are not counted.
func CountHeads(lsRemoteOutput, branch string) int {
	want := "refs/heads/" + branch
	count := 0
	for _, line := range strings.Split(lsRemoteOutput, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == want {
			count++
		}
	}
	return count
}

// FetchOptions configures Fetch.
type FetchOptions struct {
	Remote   string
	RefSpecs []string
}

// Fetch downloads refs from a remote name or URL.
func (c *Client) Fetch(ctx context.Context, opts FetchOptions) error {
	args := append([]string{"fetch", "--quiet", opts.Remote}, opts.RefSpecs...)
	_, err := c.run(ctx, args...)
	return err
}

// PushOptions configures Push.
type PushOptions struct {
	Remote  string
	RefSpec string
	Force   bool
}

// Push uploads RefSpec to Remote.
func (c *Client) Push(ctx context.Context, opts PushOptions) error {
	args := []string{"push", "--quiet"}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, opts.Remote, opts.RefSpec)
	_, err := c.run(ctx, args...)
	return err
}

// WorktreeAddOptions configures WorktreeAdd.
type WorktreeAddOptions struct {
	Path string
	// Branch is created, or reset if it already exists, at StartPoint.
	Branch     string
	StartPoint string
}

// WorktreeAdd checks StartPoint out into a new linked worktree at Path.
func (c *Client) WorktreeAdd(ctx context.Context, opts WorktreeAddOptions) error {
	args := []string{"worktree", "add", "--quiet"}
	if opts.Branch != "" {
		args = append(args, "--no-track", "-B", opts.Branch)
	}
	args = append(args, opts.Path)
	if opts.StartPoint != "" {
		args = append(args, opts.StartPoint)
	}
	_, err := c.run(ctx, args...)
	return err
}

// WorktreeRemove deletes a linked worktree and its administrative files.
func (c *Client) WorktreeRemove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := c.run(ctx, args...)
	return err
}

// WorktreePrune forgets worktrees whose directories no longer exist.
func (c *Client) WorktreePrune(ctx context.Context) error {
	_, err := c.run(ctx, "worktree", "prune")
	return err
}

// DeleteBranch removes a local branch.
func (c *Client) DeleteBranch(ctx context.Context, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := c.run(ctx, "branch", "--quiet", flag, branch)
	return err
}
