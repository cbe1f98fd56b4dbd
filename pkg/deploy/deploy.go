// Package deploy publishes a build folder to a branch of the remote
// repository. A run is a fixed sequence of git steps: make sure the target
// branch exists (creating it as an orphan when it does not), check its tip out
// into a scratch worktree, replace the worktree content with the build folder,
// commit and force-push.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/pagepush/pagepush/pkg/config"
	"github.com/pagepush/pagepush/pkg/git"
	pagepushlog "github.com/pagepush/pagepush/pkg/log"
	"github.com/pagepush/pagepush/pkg/workspace"
	"go.uber.org/multierr"
)

const (
	// TempFolder is the scratch worktree directory, relative to the workspace.
	TempFolder = "tmp-deployment-folder"
	// TempBranch is the local branch checked out in the scratch worktree.
	TempBranch = "tmp-deployment-branch"
)

// Step names, as reported in StepError.Step.
const (
	StepValidate     = "validate"
	StepBootstrap    = "bootstrap"
	StepEnsureBranch = "ensure-branch"
	StepCheckoutBase = "checkout-base"
	StepCNAME        = "cname"
	StepFetch        = "fetch"
	StepWorktree     = "worktree"
	StepCopy         = "copy"
	StepCommit       = "commit"
	StepPush         = "push"
)

// State is how far a run got. States only move forward.
type State int

const (
	Uninitialized State = iota
	Bootstrapped
	BranchEnsured
	BaseCheckedOut
	Synced
	WorktreeReady
	Committed
	Published
)

var stateNames = [...]string{
	"Uninitialized",
	"Bootstrapped",
	"BranchEnsured",
	"BaseCheckedOut",
	"Synced",
	"WorktreeReady",
	"Committed",
	"Published",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Result describes a finished run.
type Result struct {
	// Branch is the deployment branch.
	Branch string
	// Commit is the pushed commit. Empty when NoChanges is set.
	Commit string
	// CreatedBranch is set when the branch did not exist on the remote.
	CreatedBranch bool
	// NoChanges is set when the build folder matched the branch tip. Nothing
	// is committed or pushed in that case.
	NoChanges bool
	// State is the last state reached.
	State State
}

// Deployer runs deployments.
type Deployer struct {
	// Runner executes git. Defaults to git.NewExecRunner().
	Runner git.Runner

	// Copier copies the build folder into the worktree. Defaults to workspace.DirCopier.
	Copier workspace.Copier

	// WorktreeName overrides TempFolder.
	WorktreeName string

	// TempBranch overrides TempBranch.
	TempBranch string
}

// New returns a Deployer backed by the system git binary.
func New() *Deployer {
	return &Deployer{
		Runner: git.NewExecRunner(),
		Copier: workspace.DirCopier{},
	}
}

// CommitMessage is the message of a deployment commit. The sha is left out
// when it is unknown.
func CommitMessage(branch, base, sha string) string {
	if sha == "" {
		return fmt.Sprintf("Deploying to %s from %s", branch, base)
	}
	return fmt.Sprintf("Deploying to %s from %s %s", branch, base, sha)
}

// InitialCommitMessage is the message of the first commit of a new branch.
func InitialCommitMessage(branch string) string {
	return fmt.Sprintf("Initial %s commit.", branch)
}

type step struct {
	name  string
	kind  Kind
	reach State
	fn    func(context.Context) error
}

// run holds the state of one Publish call.
type run struct {
	cfg    *config.Config
	repo   *git.Client
	copier workspace.Copier

	worktreeDir   string
	tempBranch    string
	worktreeAdded bool

	result Result
}

// Publish deploys cfg.Folder to cfg.Branch. The configuration is validated
// before any git command runs. The scratch worktree and branch are removed
// before returning; cleanup failures are joined to a failed run's error and
// only logged after a successful one.
func (d *Deployer) Publish(ctx context.Context, cfg *config.Config) (res Result, err error) {
	if cfg == nil {
		return Result{}, &StepError{Kind: KindConfiguration, Step: StepValidate, Err: errors.New("configuration is required")}
	}
	if err := cfg.Validate(); err != nil {
		return Result{Branch: cfg.Branch}, &StepError{Kind: KindConfiguration, Step: StepValidate, Err: err}
	}

	r := d.newRun(cfg)
	defer func() {
		cerr := r.cleanup(context.WithoutCancel(ctx))
		if cerr == nil {
			return
		}
		if err != nil {
			err = multierr.Append(err, cerr)
			return
		}
		pagepushlog.Warn("failed to clean up deployment worktree", "error", cerr)
	}()

	pagepushlog.Progress("deploying", cfg.LogFields()...)

	for _, s := range r.steps() {
		pagepushlog.Debug("running step", "step", s.name)
		if serr := s.fn(ctx); serr != nil {
			stepErr := asStepError(s, serr)
			if !IsFatal(stepErr) {
				pagepushlog.Warn("continuing after non-fatal error", "step", s.name, "error", stepErr)
				r.result.State = s.reach
				continue
			}
			return r.result, stepErr
		}
		if r.result.NoChanges {
			break
		}
		r.result.State = s.reach
	}

	if r.result.NoChanges {
		pagepushlog.Info("nothing to deploy", "branch", cfg.Branch)
	} else {
		pagepushlog.Info("deployment published", "branch", cfg.Branch, "commit", r.result.Commit)
	}
	return r.result, nil
}

func (d *Deployer) newRun(cfg *config.Config) *run {
	runner := d.Runner
	if runner == nil {
		runner = git.NewExecRunner()
	}
	copier := d.Copier
	if copier == nil {
		copier = workspace.DirCopier{}
	}
	name := d.WorktreeName
	if name == "" {
		name = TempFolder
	}
	branch := d.TempBranch
	if branch == "" {
		branch = TempBranch
	}

	return &run{
		cfg:         cfg,
		repo:        git.NewClientWithRunner(cfg.Workspace, runner),
		copier:      copier,
		worktreeDir: filepath.Join(cfg.Workspace, name),
		tempBranch:  branch,
		result:      Result{Branch: cfg.Branch},
	}
}

func (r *run) steps() []step {
	return []step{
		{name: StepBootstrap, kind: KindBootstrap, reach: Bootstrapped, fn: r.bootstrap},
		{name: StepEnsureBranch, kind: KindBranchCreation, reach: BranchEnsured, fn: r.ensureBranch},
		{name: StepCheckoutBase, kind: KindSync, reach: BaseCheckedOut, fn: r.checkoutBase},
		{name: StepCNAME, kind: KindSync, reach: BaseCheckedOut, fn: r.writeCNAME},
		{name: StepFetch, kind: KindSync, reach: Synced, fn: r.fetch},
		{name: StepWorktree, kind: KindSync, reach: Synced, fn: r.addWorktree},
		{name: StepCopy, kind: KindSync, reach: WorktreeReady, fn: r.copyContent},
		{name: StepCommit, kind: KindCommit, reach: Committed, fn: r.commit},
		{name: StepPush, kind: KindPush, reach: Published, fn: r.push},
	}
}

func asStepError(s step, err error) error {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return err
	}
	return &StepError{Kind: s.kind, Step: s.name, Err: err}
}

func (r *run) bootstrap(ctx context.Context) error {
	if err := r.repo.InitRepository(ctx); err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	return r.repo.ConfigureIdentity(ctx, r.cfg.Committer())
}

// ensureBranch creates the deployment branch on the remote when it is missing.
func (r *run) ensureBranch(ctx context.Context) error {
	count, err := r.repo.RemoteHeadCount(ctx, r.cfg.RemoteURL, r.cfg.Branch)
	if err != nil {
		return &StepError{
			Kind: KindSync,
			Step: StepEnsureBranch,
			Err:  fmt.Errorf("failed to look up branch %s on the remote: %w", r.cfg.Branch, err),
		}
	}
	if count > 0 {
		pagepushlog.Debug("deployment branch exists", "branch", r.cfg.Branch)
		return nil
	}

	pagepushlog.Progress("creating deployment branch", "branch", r.cfg.Branch, "base", r.cfg.BaseBranch)
	if err := r.createOrphanBranch(ctx); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", r.cfg.Branch, err)
	}
	r.result.CreatedBranch = true
	return nil
}

// createOrphanBranch pushes a parentless, empty commit as the new branch. The
// commit is built from object ids only, so the workspace index, work tree and
// checked out branch are left as they are.
func (r *run) createOrphanBranch(ctx context.Context) error {
	branch := r.cfg.Branch

	if err := r.repo.Checkout(ctx, r.cfg.BaseBranch); err != nil {
		return err
	}
	tree, err := r.repo.EmptyTree(ctx)
	if err != nil {
		return err
	}
	sha, err := r.repo.CommitTree(ctx, tree, InitialCommitMessage(branch))
	if err != nil {
		return err
	}
	return r.repo.Push(ctx, git.PushOptions{Remote: r.cfg.RemoteURL, RefSpec: sha + ":refs/heads/" + branch})
}

func (r *run) checkoutBase(ctx context.Context) error {
	if err := r.repo.Checkout(ctx, r.cfg.BaseBranch); err != nil {
		return fmt.Errorf("failed to check out %s: %w", r.cfg.BaseBranch, err)
	}
	return nil
}

func (r *run) writeCNAME(context.Context) error {
	if r.cfg.CNAME == "" {
		return nil
	}
	return workspace.WriteCNAME(r.cfg.FolderPath(), r.cfg.CNAME)
}

func (r *run) fetch(ctx context.Context) error {
	return r.repo.Fetch(ctx, git.FetchOptions{
		Remote:   r.cfg.RemoteURL,
		RefSpecs: []string{"+refs/heads/*:refs/remotes/origin/*"},
	})
}

// addWorktree checks the remote branch tip out into a fresh worktree. A
// directory left by an interrupted run is removed and forgotten first.
func (r *run) addWorktree(ctx context.Context) error {
	if err := workspace.RemoveAll(r.worktreeDir); err != nil {
		return fmt.Errorf("failed to remove stale worktree: %w", err)
	}
	if err := r.repo.WorktreePrune(ctx); err != nil {
		return err
	}
	if err := r.repo.WorktreeAdd(ctx, git.WorktreeAddOptions{
		Path:       r.worktreeDir,
		Branch:     r.tempBranch,
		StartPoint: "origin/" + r.cfg.Branch,
	}); err != nil {
		return err
	}
	r.worktreeAdded = true
	return nil
}

// copyContent replaces the worktree content with the build folder.
func (r *run) copyContent(context.Context) error {
	if err := workspace.Clear(r.worktreeDir); err != nil {
		return err
	}
	return r.copier.CopyDir(r.cfg.FolderPath(), r.worktreeDir)
}

func (r *run) commit(ctx context.Context) error {
	wt := r.repo.In(r.worktreeDir)
	if err := wt.AddAll(ctx); err != nil {
		return err
	}
	changed, err := wt.HasChanges(ctx)
	if err != nil {
		return err
	}
	if !changed {
		r.result.NoChanges = true
		return nil
	}

	sha, err := wt.Commit(ctx, CommitMessage(r.cfg.Branch, r.cfg.BaseBranch, r.cfg.SHA))
	if err != nil {
		return err
	}
	r.result.Commit = sha
	return nil
}

func (r *run) push(ctx context.Context) error {
	return r.repo.In(r.worktreeDir).Push(ctx, git.PushOptions{
		Remote:  r.cfg.RemoteURL,
		RefSpec: r.tempBranch + ":" + r.cfg.Branch,
		Force:   true,
	})
}

// cleanup removes the worktree and its branch if the run created them.
func (r *run) cleanup(ctx context.Context) error {
	if !r.worktreeAdded {
		return nil
	}
	var err error
	if rerr := r.repo.WorktreeRemove(ctx, r.worktreeDir, true); rerr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to remove worktree: %w", rerr))
	}
	if derr := r.repo.DeleteBranch(ctx, r.tempBranch, true); derr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to delete branch %s: %w", r.tempBranch, derr))
	}
	return err
}
