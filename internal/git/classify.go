package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Iron-Ham/conductor/internal/errors"
)

// Output fragments mapped to sentinel causes, checked in order.
var outputClasses = []struct {
	fragments []string
	cause     error
}{
	{[]string{"not a git repository"}, errors.ErrNotGitRepository},
	{[]string{"CONFLICT", "could not revert", "could not apply", "after resolving the conflicts", "Automatic merge failed"}, errors.ErrConflicted},
	{[]string{"unknown revision", "bad revision", "Not a valid object name", "bad object", "invalid reference"}, errors.ErrUnknownRevision},
	{[]string{"local changes would be overwritten", "Your local changes", "uncommitted changes", "contains modified or untracked files"}, errors.ErrDirtyWorkingTree},
}

// Classify converts a failed invocation into a *errors.GitError whose cause
// is one of the taxonomy sentinels where one applies.
//
// ctxErr is the error of the invocation's context, used to tell a timeout
// from a caller cancellation.
func Classify(args []string, res Result, runErr error, ctxErr error, timeout time.Duration) *errors.GitError {
	sub := ""
	if len(args) > 0 {
		sub = args[0]
	}
	// merge and revert report conflicts on stdout, everything else on stderr
	output := strings.TrimSpace(string(res.Stderr) + "\n" + string(res.Stdout))
	op := strings.TrimSpace("git " + sub)

	build := func(msg string, cause error) *errors.GitError {
		return errors.NewGitError(msg, cause).
			WithCommand(args).
			WithExitCode(res.ExitCode).
			WithGitOutput(output)
	}

	switch {
	case errors.Is(runErr, exec.ErrNotFound):
		return build("git executable not found", errors.ErrGitNotFound).
			WithSeverity(errors.SeverityCritical)

	case errors.Is(ctxErr, context.DeadlineExceeded):
		cause := errors.NewTimeoutError(op, timeout).WithCause(ctxErr)
		return build(fmt.Sprintf("%s timed out", op), cause).WithRetryable(true)

	case errors.Is(ctxErr, context.Canceled):
		return build(fmt.Sprintf("%s canceled", op), errors.Join(errors.ErrCanceled, ctxErr))
	}

	if strings.Contains(output, "already exists") {
		switch {
		case sub == "branch" || strings.Contains(output, "a branch named"):
			return build(fmt.Sprintf("%s failed", op), errors.ErrBranchExists)
		case sub == "worktree":
			return build(fmt.Sprintf("%s failed", op), errors.ErrPathConflict)
		}
	}

	for _, class := range outputClasses {
		for _, frag := range class.fragments {
			if strings.Contains(output, frag) {
				gitErr := build(fmt.Sprintf("%s failed", op), class.cause)
				if class.cause == errors.ErrNotGitRepository {
					gitErr.WithSeverity(errors.SeverityCritical)
				}
				return gitErr
			}
		}
	}

	return build(fmt.Sprintf("%s failed", op), runErr)
}
