// Package errors provides structured error types for kickoff.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for kickoff.
const (
	// Initialization errors
	CodeNotInitialized     Code = "NOT_INITIALIZED"
	CodeAlreadyInitialized Code = "ALREADY_INITIALIZED"

	// Catalog errors
	CodeCatalogInvalid     Code = "CATALOG_INVALID"
	CodeSelectorUnresolved Code = "SELECTOR_UNRESOLVED"

	// Execution errors
	CodePreflightBlocking   Code = "PREFLIGHT_BLOCKING"
	CodeTaskExecutionFailed Code = "TASK_EXECUTION_FAILED"
	CodeRunInProgress       Code = "RUN_IN_PROGRESS"

	// Backup errors
	CodeSnapshotCaptureIncomplete Code = "SNAPSHOT_CAPTURE_INCOMPLETE"
	CodeSnapshotNotFound          Code = "SNAPSHOT_NOT_FOUND"
	CodeRestoreVerificationFailed Code = "RESTORE_VERIFICATION_FAILED"
	CodeRestorePartial            Code = "RESTORE_PARTIAL"

	// Repair errors
	CodeNothingToRetry Code = "NOTHING_TO_RETRY"
	CodeRepairFailed   Code = "REPAIR_FAILED"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
)

// Category groups error codes for exit status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	// CategoryFatal stops the command before any state is touched.
	CategoryFatal
	// CategoryWarning means the command finished but something needs attention.
	CategoryWarning
	// CategoryRepair is a failed repair or restore action.
	CategoryRepair
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeNotInitialized:            CategoryFatal,
	CodeAlreadyInitialized:        CategoryFatal,
	CodeCatalogInvalid:            CategoryFatal,
	CodeSelectorUnresolved:        CategoryFatal,
	CodePreflightBlocking:         CategoryFatal,
	CodeTaskExecutionFailed:       CategoryFatal,
	CodeRunInProgress:             CategoryFatal,
	CodeConfigInvalid:             CategoryFatal,
	CodeNothingToRetry:            CategoryFatal,
	CodeSnapshotNotFound:          CategoryFatal,
	CodeSnapshotCaptureIncomplete: CategoryWarning,
	CodeRestoreVerificationFailed: CategoryRepair,
	CodeRestorePartial:            CategoryRepair,
	CodeRepairFailed:              CategoryRepair,
}

// ExitCode returns the process exit status for a category.
func (c Category) ExitCode() int {
	switch c {
	case CategoryWarning:
		return 2
	case CategoryRepair:
		return 3
	default:
		return 1
	}
}

// KickoffError is the structured error type for kickoff.
type KickoffError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *KickoffError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *KickoffError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *KickoffError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category.
func (e *KickoffError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// ExitCode returns the process exit status for this error.
func (e *KickoffError) ExitCode() int {
	return e.Category().ExitCode()
}

// MarshalJSON implements json.Marshaler.
func (e *KickoffError) MarshalJSON() ([]byte, error) {
	type alias KickoffError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a KickoffError with the same code.
func (e *KickoffError) Is(target error) bool {
	t, ok := target.(*KickoffError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *KickoffError) WithCause(err error) *KickoffError {
	return &KickoffError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrNotInitialized returns an error for a project without a .kickoff directory.
func ErrNotInitialized(dir string) *KickoffError {
	return &KickoffError{
		Code: CodeNotInitialized,
		What: "kickoff is not initialized in this project",
		Why:  fmt.Sprintf("No .kickoff/config.yaml found in %s", dir),
		Fix:  "Run 'kickoff init' in the project directory",
	}
}

// ErrAlreadyInitialized returns an error when kickoff is already initialized.
func ErrAlreadyInitialized(path string) *KickoffError {
	return &KickoffError{
		Code: CodeAlreadyInitialized,
		What: "kickoff is already initialized",
		Why:  fmt.Sprintf("Found existing configuration at %s", path),
		Fix:  "Use 'kickoff init --force' to rewrite the configuration",
	}
}

// ErrCatalogInvalid returns an error listing every catalog problem found.
func ErrCatalogInvalid(path string, problems []string) *KickoffError {
	why := "the catalog could not be parsed"
	if len(problems) > 0 {
		why = strings.Join(problems, "; ")
	}
	return &KickoffError{
		Code: CodeCatalogInvalid,
		What: fmt.Sprintf("task catalog %s is invalid", path),
		Why:  why,
		Fix:  "Fix the catalog entries listed above, then run 'kickoff validate'",
	}
}

// ErrSelectorUnresolved returns an error for a selector that matches nothing.
func ErrSelectorUnresolved(selector string, suggestions []string) *KickoffError {
	fix := "Run 'kickoff list' to see task ids, phase numbers and profiles"
	if len(suggestions) > 0 {
		fix = fmt.Sprintf("Did you mean: %s? %s", strings.Join(suggestions, ", "), fix)
	}
	return &KickoffError{
		Code: CodeSelectorUnresolved,
		What: fmt.Sprintf("selector %q does not match any task, phase or profile", selector),
		Why:  "Selectors are 'all', a phase number, a task id or a profile name",
		Fix:  fix,
	}
}

// ErrPreflightBlocking returns an error when preflight found blocking problems.
func ErrPreflightBlocking(count int, summary string) *KickoffError {
	return &KickoffError{
		Code: CodePreflightBlocking,
		What: fmt.Sprintf("preflight found %d blocking problem(s)", count),
		Why:  summary,
		Fix:  "Install the missing tools or run the missing dependencies first. Use --force to run anyway",
	}
}

// ErrTaskExecutionFailed returns an error for a single failed task.
func ErrTaskExecutionFailed(taskID string, cause error) *KickoffError {
	return &KickoffError{
		Code:  CodeTaskExecutionFailed,
		What:  fmt.Sprintf("task %s failed", taskID),
		Fix:   "Check the task output, then run 'kickoff repair retry'",
		Cause: cause,
	}
}

// ErrRunInProgress returns an error when another engine holds the run guard.
func ErrRunInProgress(pid int) *KickoffError {
	return &KickoffError{
		Code: CodeRunInProgress,
		What: "another kickoff run is in progress",
		Why:  fmt.Sprintf("Process %d holds the run guard for this project", pid),
		Fix:  "Wait for it to finish. If the process is gone, remove .kickoff/run.pid",
	}
}

// ErrSnapshotCaptureIncomplete returns a warning for critical files absent at snapshot time.
func ErrSnapshotCaptureIncomplete(id string, missing []string) *KickoffError {
	return &KickoffError{
		Code: CodeSnapshotCaptureIncomplete,
		What: fmt.Sprintf("snapshot %s is missing %d critical file(s)", id, len(missing)),
		Why:  strings.Join(missing, ", "),
		Fix:  "The files did not exist when the snapshot was taken; they cannot be restored from it",
	}
}

// ErrSnapshotNotFound returns an error for an unknown snapshot id.
func ErrSnapshotNotFound(id string) *KickoffError {
	return &KickoffError{
		Code: CodeSnapshotNotFound,
		What: fmt.Sprintf("snapshot %s not found", id),
		Fix:  "Run 'kickoff backup list' to see available snapshots",
	}
}

// ErrRestoreVerificationFailed returns an error when a snapshot fails verification.
func ErrRestoreVerificationFailed(id string, problems []string) *KickoffError {
	return &KickoffError{
		Code: CodeRestoreVerificationFailed,
		What: fmt.Sprintf("snapshot %s failed verification", id),
		Why:  strings.Join(problems, "; "),
		Fix:  "No files were changed. Pick an older snapshot with 'kickoff backup list'",
	}
}

// ErrRestorePartial returns an error when some files could not be restored.
func ErrRestorePartial(id, preRestoreID string, failed []string) *KickoffError {
	return &KickoffError{
		Code: CodeRestorePartial,
		What: fmt.Sprintf("snapshot %s was only partially restored", id),
		Why:  fmt.Sprintf("could not restore: %s", strings.Join(failed, ", ")),
		Fix:  fmt.Sprintf("Run 'kickoff backup restore %s' to return to the state before this restore", preRestoreID),
	}
}

// ErrNothingToRetry returns an error when there is no failed task recorded.
func ErrNothingToRetry() *KickoffError {
	return &KickoffError{
		Code: CodeNothingToRetry,
		What: "no failed task to retry",
		Why:  "The state document does not record a failed task",
		Fix:  "Run 'kickoff repair status' to see the current state",
	}
}

// ErrRepairFailed returns an error for a repair action that could not complete.
func ErrRepairFailed(action string, cause error) *KickoffError {
	return &KickoffError{
		Code:  CodeRepairFailed,
		What:  fmt.Sprintf("repair %s failed", action),
		Fix:   "Inspect .kickoff/ and the latest snapshot with 'kickoff backup list'",
		Cause: cause,
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *KickoffError {
	return &KickoffError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .kickoff/config.yaml and fix the invalid field",
	}
}

// AsKickoffError attempts to convert an error to a KickoffError.
// Returns nil if the error is not a KickoffError.
func AsKickoffError(err error) *KickoffError {
	var kerr *KickoffError
	if stderrors.As(err, &kerr) {
		return kerr
	}
	return nil
}

// HasCode reports whether err is a KickoffError with the given code.
func HasCode(err error, code Code) bool {
	kerr := AsKickoffError(err)
	return kerr != nil && kerr.Code == code
}

// ExitCode returns the exit status for err: 0 for nil, the category's
// code for a KickoffError, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if kerr := AsKickoffError(err); kerr != nil {
		return kerr.ExitCode()
	}
	return 1
}

// Wrap wraps a generic error into a KickoffError with unknown code.
func Wrap(err error, what string) *KickoffError {
	return &KickoffError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
