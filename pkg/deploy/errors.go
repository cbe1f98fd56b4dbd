package deploy

import (
	"errors"
	"fmt"
)

// Kind classifies deployment failures.
type Kind string

const (
	// KindConfiguration is an unusable configuration, reported before any git command.
	KindConfiguration Kind = "ConfigurationError"
	// KindBootstrap is a failed init or identity setup. It does not stop the run.
	KindBootstrap Kind = "BootstrapError"
	// KindBranchCreation is a failure creating or pushing the orphan branch.
	KindBranchCreation Kind = "BranchCreationError"
	// KindSync covers the remote query, checkout, fetch and worktree steps.
	KindSync Kind = "SyncError"
	// KindCommit is a failure staging or committing the new content.
	KindCommit Kind = "CommitError"
	// KindPush is a rejected or failed final push.
	KindPush Kind = "PushError"
)

// StepError is a failure of one named deployment step.
type StepError struct {
	Kind Kind
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s step failed: %v", e.Kind, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first StepError in err's chain, or "".
func KindOf(err error) Kind {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Kind
	}
	return ""
}

// IsFatal reports whether err must fail the run. Only bootstrap errors are
// tolerated.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) != KindBootstrap
}
