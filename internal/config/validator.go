package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "git.timeout")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// branchPrefixRegex validates branch prefix characters
var branchPrefixRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_/-]*$`)

// notesRefRegex allows the short names accepted by `git notes --ref`.
var notesRefRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_./-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateGit()...)
	errors = append(errors, c.validateBranch()...)
	errors = append(errors, c.validateConventions()...)
	errors = append(errors, c.validateRevert()...)
	errors = append(errors, c.validateMerge()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	names := []struct {
		field string
		value string
	}{
		{"paths.conductor_dir", c.Paths.ConductorDir},
		{"paths.tracks_dir", c.Paths.TracksDir},
		{"paths.tracks_file", c.Paths.TracksFile},
		{"paths.plan_file", c.Paths.PlanFile},
		{"paths.metadata_file", c.Paths.MetadataFile},
	}
	for _, n := range names {
		switch {
		case n.value == "":
			errors = append(errors, ValidationError{Field: n.field, Value: n.value, Message: "must not be empty"})
		case filepath.IsAbs(n.value):
			errors = append(errors, ValidationError{Field: n.field, Value: n.value, Message: "must be relative to the repository root"})
		case slices.Contains(strings.Split(filepath.ToSlash(n.value), "/"), ".."):
			errors = append(errors, ValidationError{Field: n.field, Value: n.value, Message: "must not escape the repository"})
		}
	}

	if c.Paths.WorktreeDir != "" {
		path := c.Paths.WorktreeDir

		if strings.ContainsRune(path, '\x00') {
			errors = append(errors, ValidationError{
				Field:   "paths.worktree_dir",
				Value:   path,
				Message: "path contains invalid null character",
			})
		}

		const maxPathLength = 4096
		if len(path) > maxPathLength {
			errors = append(errors, ValidationError{
				Field:   "paths.worktree_dir",
				Value:   path,
				Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
			})
		}
	}

	return errors
}

// validateGit validates the GitConfig
func (c *Config) validateGit() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Git.Binary) == "" {
		errors = append(errors, ValidationError{
			Field:   "git.binary",
			Value:   c.Git.Binary,
			Message: "must not be empty",
		})
	}

	if c.Git.Timeout < time.Second {
		errors = append(errors, ValidationError{
			Field:   "git.timeout",
			Value:   c.Git.Timeout,
			Message: "must be at least 1s",
		})
	}

	if !notesRefRegex.MatchString(c.Git.NotesRef) {
		errors = append(errors, ValidationError{
			Field:   "git.notes_ref",
			Value:   c.Git.NotesRef,
			Message: "must be a valid ref name",
		})
	}

	if c.Git.Mainline < 1 {
		errors = append(errors, ValidationError{
			Field:   "git.mainline",
			Value:   c.Git.Mainline,
			Message: "must be a parent number starting at 1",
		})
	}

	return errors
}

// validateBranch validates the BranchConfig
func (c *Config) validateBranch() []ValidationError {
	var errors []ValidationError

	if c.Branch.Prefix != "" {
		if !branchPrefixRegex.MatchString(c.Branch.Prefix) {
			errors = append(errors, ValidationError{
				Field:   "branch.prefix",
				Value:   c.Branch.Prefix,
				Message: "must start with a letter and contain only letters, digits, '-', '_' or '/'",
			})
		}
		if strings.HasSuffix(c.Branch.Prefix, "/") || strings.Contains(c.Branch.Prefix, "//") {
			errors = append(errors, ValidationError{
				Field:   "branch.prefix",
				Value:   c.Branch.Prefix,
				Message: "must not end with '/' or contain empty path components",
			})
		}
	}

	return errors
}

// validateConventions checks that every convention pattern compiles
func (c *Config) validateConventions() []ValidationError {
	var errors []ValidationError

	groups := []struct {
		field    string
		patterns []string
	}{
		{"conventions.plan_update", c.Conventions.PlanUpdate},
		{"conventions.checkpoint", c.Conventions.Checkpoint},
		{"conventions.track_creation", c.Conventions.TrackCreation},
	}
	for _, g := range groups {
		for i, p := range g.patterns {
			if _, err := regexp.Compile(p); err != nil {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s[%d]", g.field, i),
					Value:   p,
					Message: fmt.Sprintf("invalid regular expression: %v", err),
				})
			}
		}
	}

	return errors
}

// validateRevert validates the RevertConfig
func (c *Config) validateRevert() []ValidationError {
	var errors []ValidationError

	if c.Revert.SearchLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "revert.search_limit",
			Value:   c.Revert.SearchLimit,
			Message: "must be non-negative (0 means unlimited)",
		})
	}

	return errors
}

// validateMerge validates the MergeConfig
func (c *Config) validateMerge() []ValidationError {
	var errors []ValidationError

	if c.Merge.LockTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "merge.lock_timeout",
			Value:   c.Merge.LockTimeout,
			Message: "must be positive",
		})
	}

	if c.Merge.LockPoll <= 0 {
		errors = append(errors, ValidationError{
			Field:   "merge.lock_poll",
			Value:   c.Merge.LockPoll,
			Message: "must be positive",
		})
	} else if c.Merge.LockTimeout > 0 && c.Merge.LockPoll > c.Merge.LockTimeout {
		errors = append(errors, ValidationError{
			Field:   "merge.lock_poll",
			Value:   c.Merge.LockPoll,
			Message: "must not exceed merge.lock_timeout",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
