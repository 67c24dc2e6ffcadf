// Package errors provides centralized error definitions and error handling utilities
// for conductor. It defines the error taxonomy of the plan store, the commit
// correlator, the revert engine, the workspace manager and the checkpoint
// recorder, plus error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - PlanError: malformed plan documents, invalid transitions, concurrent edits
//   - HistoryError: commit references that could not be resolved
//   - RevertError: revert sessions that halted, conflicted or were aborted
//   - WorkspaceError: isolated workspace creation, merge and cleanup failures
//   - CheckpointError: checkpoint recording failures
//   - GitError: classified failures of the git subprocess
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Repository State
//
// Every domain error records the state the repository was left in
// (unchanged, partially applied, fully applied). StateOf finds it anywhere
// in a wrapped chain.
//
// # Usage
//
//	err := errors.NewPlanError("status marker missing", errors.ErrMalformedPlan).
//		WithPath("conductor/tracks/x/plan.md").
//		WithLine(12)
//
//	if errors.Is(err, errors.ErrMalformedPlan) { ... }
//
//	var revertErr *errors.RevertError
//	if errors.As(err, &revertErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// RepoState describes what a failed operation left behind in the repository.
type RepoState string

const (
	// RepoUnknown means the operation could not determine the repository state.
	RepoUnknown RepoState = ""
	// RepoUnchanged means nothing was written to history or the working tree.
	RepoUnchanged RepoState = "unchanged"
	// RepoPartiallyApplied means some, but not all, changes were applied.
	RepoPartiallyApplied RepoState = "partially_applied"
	// RepoFullyApplied means all changes were applied before the failure.
	RepoFullyApplied RepoState = "fully_applied"
)

// String returns a human readable description of the state.
func (s RepoState) String() string {
	switch s {
	case RepoUnchanged:
		return "unchanged"
	case RepoPartiallyApplied:
		return "partially applied"
	case RepoFullyApplied:
		return "fully applied"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Plan store sentinel errors
var (
	// ErrMalformedPlan indicates a plan document with missing or ambiguous status markers.
	ErrMalformedPlan = New("malformed plan")
	// ErrInvalidTransition indicates a status change that would break the parent/child invariant.
	ErrInvalidTransition = New("invalid status transition")
	// ErrConcurrentModification indicates the plan changed on disk since it was loaded.
	ErrConcurrentModification = New("plan modified concurrently")
	// ErrItemNotFound indicates that a work item id does not exist in the plan.
	ErrItemNotFound = New("work item not found")
)

// History and revert sentinel errors
var (
	// ErrUnresolvedHistory indicates commit references that could not be confirmed.
	ErrUnresolvedHistory = New("unresolved history")
	// ErrDirtyWorkingTree indicates uncommitted changes where a clean tree is required.
	ErrDirtyWorkingTree = New("working tree has uncommitted changes")
	// ErrConflicted indicates that applying a change halted on a conflict.
	ErrConflicted = New("conflicted")
	// ErrSessionActive indicates that a revert session is already in progress.
	ErrSessionActive = New("revert session already in progress")
	// ErrNoSession indicates that there is no revert session to continue or abort.
	ErrNoSession = New("no revert session in progress")
	// ErrUnconfirmed indicates plan warnings that were not acknowledged.
	ErrUnconfirmed = New("confirmation required")
)

// Workspace and checkpoint sentinel errors
var (
	// ErrPathConflict indicates that a workspace path already exists.
	ErrPathConflict = New("workspace path already exists")
	// ErrBranchExists indicates that a branch already exists.
	ErrBranchExists = New("branch already exists")
	// ErrUnmergedWork indicates a workspace branch with commits that were never merged.
	ErrUnmergedWork = New("workspace has unmerged commits")
	// ErrMergeConflict indicates that a merge halted on conflicts.
	ErrMergeConflict = New("merge conflict")
	// ErrWorkspaceNotFound indicates that a workspace could not be found.
	ErrWorkspaceNotFound = New("workspace not found")
	// ErrNoConfirmation indicates a checkpoint request without positive user confirmation.
	ErrNoConfirmation = New("checkpoint requires explicit user confirmation")
	// ErrLocked indicates that a lock is held by another live process.
	ErrLocked = New("locked by another process")
)

// Git subprocess sentinel errors
var (
	// ErrGitNotFound indicates that the git binary could not be found.
	ErrGitNotFound = New("git executable not found")
	// ErrNotGitRepository indicates that the directory is not a git repository.
	ErrNotGitRepository = New("not a git repository")
	// ErrUnknownRevision indicates a revision that does not name an object.
	ErrUnknownRevision = New("unknown revision")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ConductorError is the base interface for all conductor errors.
type ConductorError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the message is safe to display to users.
	IsUserFacing() bool

	// RepoState returns the repository state left behind by the failure.
	RepoState() RepoState
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
	state      RepoState
}

func newBase(message string, cause error) baseError {
	return baseError{
		message:    message,
		cause:      cause,
		severity:   SeverityError,
		userFacing: true,
	}
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// RepoState returns the repository state recorded on the error.
func (e *baseError) RepoState() RepoState {
	return e.state
}

// Message returns the error message without context or cause.
func (e *baseError) Message() string {
	return e.message
}

func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// PlanError represents errors raised by the plan store.
//
// Example:
//
//	err := errors.NewPlanError("parent has pending children", errors.ErrInvalidTransition)
//	err = err.WithItem("p1").WithPath("conductor/tracks/auth/plan.md")
type PlanError struct {
	baseError
	Path   string
	ItemID string
	Line   int
}

// NewPlanError creates a new PlanError. Plan errors never touch git history,
// so the repository state defaults to unchanged.
func NewPlanError(message string, cause error) *PlanError {
	e := &PlanError{baseError: newBase(message, cause)}
	e.state = RepoUnchanged
	return e
}

// WithPath adds the plan document path to the error context.
func (e *PlanError) WithPath(path string) *PlanError {
	e.Path = path
	return e
}

// WithItem adds a work item id to the error context.
func (e *PlanError) WithItem(id string) *PlanError {
	e.ItemID = id
	return e
}

// WithLine adds a 1-based line number to the error context.
func (e *PlanError) WithLine(line int) *PlanError {
	e.Line = line
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *PlanError) WithRetryable(r bool) *PlanError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *PlanError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("plan=%s", e.Path))
	}
	if e.ItemID != "" {
		parts = append(parts, fmt.Sprintf("item=%s", e.ItemID))
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line=%d", e.Line))
	}
	return formatWithContext("plan error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *PlanError) Is(target error) bool {
	if _, ok := target.(*PlanError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// HistoryError represents commit references that could not be resolved
// against the live commit graph.
type HistoryError struct {
	baseError
	ItemID string
	Ghosts []string
}

// NewHistoryError creates a new HistoryError.
func NewHistoryError(message string, cause error) *HistoryError {
	e := &HistoryError{baseError: newBase(message, cause)}
	e.state = RepoUnchanged
	e.severity = SeverityWarning
	return e
}

// WithItem adds a work item id to the error context.
func (e *HistoryError) WithItem(id string) *HistoryError {
	e.ItemID = id
	return e
}

// WithGhosts records the unresolved commit references.
func (e *HistoryError) WithGhosts(shas ...string) *HistoryError {
	e.Ghosts = append(e.Ghosts, shas...)
	return e
}

// Error returns the formatted error message.
func (e *HistoryError) Error() string {
	var parts []string
	if e.ItemID != "" {
		parts = append(parts, fmt.Sprintf("item=%s", e.ItemID))
	}
	if len(e.Ghosts) > 0 {
		parts = append(parts, fmt.Sprintf("ghosts=%s", strings.Join(e.Ghosts, ",")))
	}
	return formatWithContext("history error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *HistoryError) Is(target error) bool {
	if _, ok := target.(*HistoryError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// RevertError represents a revert session that could not run to completion.
//
// Example:
//
//	err := errors.NewRevertError("revert halted", errors.ErrConflicted).
//		WithSession(id, "conflicted").
//		WithProgress(applied, remaining).
//		WithConflicts(paths, diff)
type RevertError struct {
	baseError
	SessionID     string
	State         string
	Applied       []string
	Remaining     []string
	ConflictPaths []string
	Diff          string
}

// NewRevertError creates a new RevertError.
func NewRevertError(message string, cause error) *RevertError {
	return &RevertError{baseError: newBase(message, cause)}
}

// WithSession adds the session id and its state to the error context.
func (e *RevertError) WithSession(id, state string) *RevertError {
	e.SessionID = id
	e.State = state
	return e
}

// WithProgress records which commits were already reverted and which remain.
func (e *RevertError) WithProgress(applied, remaining []string) *RevertError {
	e.Applied = applied
	e.Remaining = remaining
	return e
}

// WithConflicts records the conflicting paths and the conflict diff.
func (e *RevertError) WithConflicts(paths []string, diff string) *RevertError {
	e.ConflictPaths = paths
	e.Diff = diff
	return e
}

// WithRepoState sets the repository state left behind.
func (e *RevertError) WithRepoState(s RepoState) *RevertError {
	e.state = s
	return e
}

// Error returns the formatted error message.
func (e *RevertError) Error() string {
	var parts []string
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	if e.State != "" {
		parts = append(parts, fmt.Sprintf("state=%s", e.State))
	}
	if len(e.Applied) > 0 {
		parts = append(parts, fmt.Sprintf("applied=%d", len(e.Applied)))
	}
	if len(e.ConflictPaths) > 0 {
		parts = append(parts, fmt.Sprintf("conflicts=%s", strings.Join(e.ConflictPaths, ",")))
	}
	return formatWithContext("revert error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *RevertError) Is(target error) bool {
	if _, ok := target.(*RevertError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// WorkspaceError represents errors related to isolated workspaces.
//
// Example:
//
//	err := errors.NewWorkspaceError("branch already exists", errors.ErrBranchExists).
//		WithBranch("feature/x").
//		WithSuggestion("feature/x-2")
type WorkspaceError struct {
	baseError
	Owner         string
	Path          string
	Branch        string
	Suggestion    string
	ConflictPaths []string
}

// NewWorkspaceError creates a new WorkspaceError.
func NewWorkspaceError(message string, cause error) *WorkspaceError {
	return &WorkspaceError{baseError: newBase(message, cause)}
}

// WithOwner adds the workspace owner to the error context.
func (e *WorkspaceError) WithOwner(owner string) *WorkspaceError {
	e.Owner = owner
	return e
}

// WithPath adds the workspace path to the error context.
func (e *WorkspaceError) WithPath(path string) *WorkspaceError {
	e.Path = path
	return e
}

// WithBranch adds the workspace branch to the error context.
func (e *WorkspaceError) WithBranch(branch string) *WorkspaceError {
	e.Branch = branch
	return e
}

// WithSuggestion offers the caller an alternative name.
func (e *WorkspaceError) WithSuggestion(s string) *WorkspaceError {
	e.Suggestion = s
	return e
}

// WithConflicts records conflicting paths of a halted merge.
func (e *WorkspaceError) WithConflicts(paths []string) *WorkspaceError {
	e.ConflictPaths = paths
	return e
}

// WithRepoState sets the repository state left behind.
func (e *WorkspaceError) WithRepoState(s RepoState) *WorkspaceError {
	e.state = s
	return e
}

// Error returns the formatted error message.
func (e *WorkspaceError) Error() string {
	var parts []string
	if e.Owner != "" {
		parts = append(parts, fmt.Sprintf("owner=%s", e.Owner))
	}
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	msg := formatWithContext("workspace error", parts, e.message, e.cause)
	if e.Suggestion != "" {
		msg = fmt.Sprintf("%s (try %q)", msg, e.Suggestion)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *WorkspaceError) Is(target error) bool {
	if _, ok := target.(*WorkspaceError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CheckpointError represents errors raised while recording a checkpoint.
type CheckpointError struct {
	baseError
	TrackID string
	PhaseID string
}

// NewCheckpointError creates a new CheckpointError.
func NewCheckpointError(message string, cause error) *CheckpointError {
	return &CheckpointError{baseError: newBase(message, cause)}
}

// WithPhase adds the track and phase ids to the error context.
func (e *CheckpointError) WithPhase(trackID, phaseID string) *CheckpointError {
	e.TrackID = trackID
	e.PhaseID = phaseID
	return e
}

// WithRepoState sets the repository state left behind.
func (e *CheckpointError) WithRepoState(s RepoState) *CheckpointError {
	e.state = s
	return e
}

// Error returns the formatted error message.
func (e *CheckpointError) Error() string {
	var parts []string
	if e.TrackID != "" {
		parts = append(parts, fmt.Sprintf("track=%s", e.TrackID))
	}
	if e.PhaseID != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.PhaseID))
	}
	return formatWithContext("checkpoint error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *CheckpointError) Is(target error) bool {
	if _, ok := target.(*CheckpointError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// GitError represents a classified failure of a git subprocess.
//
// Example:
//
//	err := errors.NewGitError("git revert failed", errors.ErrConflicted).
//		WithCommand([]string{"revert", "--no-edit", sha}).
//		WithExitCode(1).
//		WithGitOutput(stderr)
type GitError struct {
	baseError
	Args       []string
	Dir        string
	ExitCode   int
	Branch     string
	Repository string
	GitOutput  string // Captured stderr
}

// NewGitError creates a new GitError.
func NewGitError(message string, cause error) *GitError {
	return &GitError{
		baseError: newBase(message, cause),
		ExitCode:  -1,
	}
}

// WithCommand records the git arguments that were run.
func (e *GitError) WithCommand(args []string) *GitError {
	e.Args = args
	return e
}

// WithDir records the working directory the command ran in.
func (e *GitError) WithDir(dir string) *GitError {
	e.Dir = dir
	return e
}

// WithExitCode records the process exit code.
func (e *GitError) WithExitCode(code int) *GitError {
	e.ExitCode = code
	return e
}

// WithBranch adds a branch name to the error context.
func (e *GitError) WithBranch(branch string) *GitError {
	e.Branch = branch
	return e
}

// WithRepository adds a repository path to the error context.
func (e *GitError) WithRepository(path string) *GitError {
	e.Repository = path
	return e
}

// WithGitOutput adds git command output to the error context.
func (e *GitError) WithGitOutput(output string) *GitError {
	e.GitOutput = output
	return e
}

// WithSeverity sets the error severity.
func (e *GitError) WithSeverity(s Severity) *GitError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *GitError) WithRetryable(r bool) *GitError {
	e.retryable = r
	return e
}

// Subcommand returns the git subcommand, e.g. "revert".
func (e *GitError) Subcommand() string {
	if len(e.Args) == 0 {
		return ""
	}
	return e.Args[0]
}

// Error returns the formatted error message.
func (e *GitError) Error() string {
	var parts []string
	if sub := e.Subcommand(); sub != "" {
		parts = append(parts, fmt.Sprintf("cmd=%s", sub))
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	if e.Repository != "" {
		parts = append(parts, fmt.Sprintf("repo=%s", e.Repository))
	}

	msg := formatWithContext("git error", parts, e.message, e.cause)
	if out := strings.TrimSpace(e.GitOutput); out != "" {
		msg = fmt.Sprintf("%s\ngit output: %s", msg, out)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	e := &ValidationError{baseError: newBase(message, nil)}
	e.severity = SeverityWarning
	e.state = RepoUnchanged
	return e
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatWithContext("validation error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("git revert", 30*time.Second)
//	fmt.Println(err) // "timeout error: git revert (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	e := &TimeoutError{
		baseError: newBase(operation, nil),
		Operation: operation,
		Duration:  duration,
	}
	e.severity = SeverityWarning
	e.retryable = true
	return e
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ce ConductorError
	if As(err, &ce) {
		return ce.IsRetryable()
	}

	return Is(err, ErrTimeout) || Is(err, ErrConcurrentModification)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var ce ConductorError
	if As(err, &ce) {
		return ce.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ConductorError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var ce ConductorError
	if As(err, &ce) {
		return ce.Severity()
	}
	return SeverityError
}

// IsFatal reports whether err means the environment cannot support any
// operation at all (git missing, no repository). Such errors abort before
// any mutation is attempted.
func IsFatal(err error) bool {
	return Is(err, ErrGitNotFound) || Is(err, ErrNotGitRepository)
}

// StateOf returns the repository state recorded on the first ConductorError
// in err's chain that has one.
func StateOf(err error) RepoState {
	for err != nil {
		if ce, ok := err.(ConductorError); ok && ce.RepoState() != RepoUnknown {
			return ce.RepoState()
		}
		err = Unwrap(err)
	}
	return RepoUnknown
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
