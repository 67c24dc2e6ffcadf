package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "git.mainline",
		Value:   0,
		Message: "must be a parent number starting at 1",
	}

	expected := "git.mainline: must be a parent number starting at 1 (got: 0)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty conductor dir", func(c *Config) { c.Paths.ConductorDir = "" }, "paths.conductor_dir"},
		{"absolute plan file", func(c *Config) { c.Paths.PlanFile = "/etc/plan.md" }, "paths.plan_file"},
		{"escaping tracks dir", func(c *Config) { c.Paths.TracksDir = "../tracks" }, "paths.tracks_dir"},
		{"null in worktree dir", func(c *Config) { c.Paths.WorktreeDir = "a\x00b" }, "paths.worktree_dir"},
		{"empty git binary", func(c *Config) { c.Git.Binary = " " }, "git.binary"},
		{"tiny timeout", func(c *Config) { c.Git.Timeout = 10 * time.Millisecond }, "git.timeout"},
		{"bad notes ref", func(c *Config) { c.Git.NotesRef = "-bad" }, "git.notes_ref"},
		{"zero mainline", func(c *Config) { c.Git.Mainline = 0 }, "git.mainline"},
		{"bad branch prefix", func(c *Config) { c.Branch.Prefix = "1abc" }, "branch.prefix"},
		{"trailing slash prefix", func(c *Config) { c.Branch.Prefix = "agents/" }, "branch.prefix"},
		{"bad convention regex", func(c *Config) { c.Conventions.Checkpoint = []string{"("} }, "conventions.checkpoint[0]"},
		{"negative search limit", func(c *Config) { c.Revert.SearchLimit = -1 }, "revert.search_limit"},
		{"zero lock timeout", func(c *Config) { c.Merge.LockTimeout = 0 }, "merge.lock_timeout"},
		{"poll exceeds timeout", func(c *Config) { c.Merge.LockPoll = time.Hour }, "merge.lock_poll"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"zero log size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected validation error for %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestConfig_Validate_NestedBranchPrefix(t *testing.T) {
	cfg := Default()
	cfg.Branch.Prefix = "team/agents"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("nested prefix should be valid, got %v", errs)
	}
}
