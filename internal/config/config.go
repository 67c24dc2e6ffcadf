package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete conductor configuration
type Config struct {
	Paths       PathsConfig       `mapstructure:"paths" yaml:"paths"`
	Git         GitConfig         `mapstructure:"git" yaml:"git"`
	Branch      BranchConfig      `mapstructure:"branch" yaml:"branch"`
	Conventions ConventionsConfig `mapstructure:"conventions" yaml:"conventions"`
	Revert      RevertConfig      `mapstructure:"revert" yaml:"revert"`
	Merge       MergeConfig       `mapstructure:"merge" yaml:"merge"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// PathsConfig locates the plan documents inside a repository and the
// directory that holds isolated workspaces.
type PathsConfig struct {
	// ConductorDir is the directory, relative to the repository root, that
	// holds the track registry and the per-track directories.
	ConductorDir string `mapstructure:"conductor_dir" yaml:"conductor_dir"`
	// TracksFile is the registry file name inside ConductorDir.
	TracksFile string `mapstructure:"tracks_file" yaml:"tracks_file"`
	// TracksDir is the directory inside ConductorDir with one subdirectory per track.
	TracksDir string `mapstructure:"tracks_dir" yaml:"tracks_dir"`
	// PlanFile is the plan document name inside a track directory.
	PlanFile string `mapstructure:"plan_file" yaml:"plan_file"`
	// MetadataFile is the metadata record name inside a track directory.
	MetadataFile string `mapstructure:"metadata_file" yaml:"metadata_file"`
	// WorktreeDir is where isolated workspaces are created.
	// Relative paths resolve against the repository root; ~ expands to $HOME.
	WorktreeDir string `mapstructure:"worktree_dir" yaml:"worktree_dir"`
}

// GitConfig controls how the git subprocess is invoked
type GitConfig struct {
	// Binary is the git executable name or path.
	Binary string `mapstructure:"binary" yaml:"binary"`
	// Timeout bounds every individual git invocation.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// NotesRef is the notes namespace used for checkpoint evidence.
	NotesRef string `mapstructure:"notes_ref" yaml:"notes_ref"`
	// Mainline is the parent number passed to `git revert -m` for merges.
	Mainline int `mapstructure:"mainline" yaml:"mainline"`
}

// BranchConfig controls branch naming for workspaces
type BranchConfig struct {
	// Prefix is prepended to the owner when no branch hint is given.
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// ConventionsConfig holds the commit message patterns used to classify
// commits when the metadata record does not carry a kind. Each entry is a
// regular expression matched against the subject line.
type ConventionsConfig struct {
	PlanUpdate    []string `mapstructure:"plan_update" yaml:"plan_update"`
	Checkpoint    []string `mapstructure:"checkpoint" yaml:"checkpoint"`
	TrackCreation []string `mapstructure:"track_creation" yaml:"track_creation"`
}

// RevertConfig controls revert planning
type RevertConfig struct {
	// SearchLimit caps how many commits the ghost message search scans.
	// Zero scans the full history.
	SearchLimit int `mapstructure:"search_limit" yaml:"search_limit"`
	// IncludePlanUpdates adds plan_update commits that mention the target
	// item to phase and task reverts.
	IncludePlanUpdates bool `mapstructure:"include_plan_updates" yaml:"include_plan_updates"`
}

// MergeConfig controls serialization of merges into the main line
type MergeConfig struct {
	// LockTimeout is how long a merge waits for the mainline lock.
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`
	// LockPoll is the interval between lock attempts.
	LockPoll time.Duration `mapstructure:"lock_poll" yaml:"lock_poll"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled writes JSON logs to debug.log in the conductor state directory.
	// When false, warnings and errors still go to stderr.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level: debug, info, warn or error.
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the size at which debug.log is rotated.
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files.
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// MetricsConfig controls metrics export
type MetricsConfig struct {
	// Textfile is a path for node_exporter's textfile collector. Empty
	// disables export.
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// TracksRoot returns the absolute directory holding per-track directories.
func (p *PathsConfig) TracksRoot(repoRoot string) string {
	return filepath.Join(repoRoot, p.ConductorDir, p.TracksDir)
}

// TrackDir returns the absolute directory of one track.
func (p *PathsConfig) TrackDir(repoRoot, trackID string) string {
	return filepath.Join(p.TracksRoot(repoRoot), trackID)
}

// PlanPath returns the absolute path of a track's plan document.
func (p *PathsConfig) PlanPath(repoRoot, trackID string) string {
	return filepath.Join(p.TrackDir(repoRoot, trackID), p.PlanFile)
}

// MetadataPath returns the absolute path of a track's metadata record.
func (p *PathsConfig) MetadataPath(repoRoot, trackID string) string {
	return filepath.Join(p.TrackDir(repoRoot, trackID), p.MetadataFile)
}

// RegistryPath returns the absolute path of the track registry.
func (p *PathsConfig) RegistryPath(repoRoot string) string {
	return filepath.Join(repoRoot, p.ConductorDir, p.TracksFile)
}

// ResolveWorktreeDir returns the resolved worktree directory path.
// If WorktreeDir is empty, it returns the default path relative to baseDir.
// If WorktreeDir starts with ~, it expands to the user's home directory.
// If WorktreeDir is a relative path, it's resolved relative to baseDir.
func (p *PathsConfig) ResolveWorktreeDir(baseDir string) string {
	if p.WorktreeDir == "" {
		return filepath.Join(baseDir, ".conductor", "worktrees")
	}

	path := p.WorktreeDir
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			ConductorDir: "conductor",
			TracksFile:   "tracks.md",
			TracksDir:    "tracks",
			PlanFile:     "plan.md",
			MetadataFile: "metadata.json",
			WorktreeDir:  "",
		},
		Git: GitConfig{
			Binary:   "git",
			Timeout:  30 * time.Second,
			NotesRef: "conductor",
			Mainline: 1,
		},
		Branch: BranchConfig{
			Prefix: "conductor",
		},
		Conventions: ConventionsConfig{
			PlanUpdate:    []string{`^conductor\(plan\):`, `^conductor\(revert\):`},
			Checkpoint:    []string{`^conductor\(checkpoint\):`},
			TrackCreation: []string{`^chore\(conductor\): Add new track`},
		},
		Revert: RevertConfig{
			SearchLimit:        0,
			IncludePlanUpdates: true,
		},
		Merge: MergeConfig{
			LockTimeout: 2 * time.Minute,
			LockPoll:    250 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  5,
			MaxBackups: 3,
			Compress:   false,
		},
		Metrics: MetricsConfig{
			Textfile: "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Paths defaults
	viper.SetDefault("paths.conductor_dir", defaults.Paths.ConductorDir)
	viper.SetDefault("paths.tracks_file", defaults.Paths.TracksFile)
	viper.SetDefault("paths.tracks_dir", defaults.Paths.TracksDir)
	viper.SetDefault("paths.plan_file", defaults.Paths.PlanFile)
	viper.SetDefault("paths.metadata_file", defaults.Paths.MetadataFile)
	viper.SetDefault("paths.worktree_dir", defaults.Paths.WorktreeDir)

	// Git defaults
	viper.SetDefault("git.binary", defaults.Git.Binary)
	viper.SetDefault("git.timeout", defaults.Git.Timeout)
	viper.SetDefault("git.notes_ref", defaults.Git.NotesRef)
	viper.SetDefault("git.mainline", defaults.Git.Mainline)

	// Branch defaults
	viper.SetDefault("branch.prefix", defaults.Branch.Prefix)

	// Convention defaults
	viper.SetDefault("conventions.plan_update", defaults.Conventions.PlanUpdate)
	viper.SetDefault("conventions.checkpoint", defaults.Conventions.Checkpoint)
	viper.SetDefault("conventions.track_creation", defaults.Conventions.TrackCreation)

	// Revert defaults
	viper.SetDefault("revert.search_limit", defaults.Revert.SearchLimit)
	viper.SetDefault("revert.include_plan_updates", defaults.Revert.IncludePlanUpdates)

	// Merge defaults
	viper.SetDefault("merge.lock_timeout", defaults.Merge.LockTimeout)
	viper.SetDefault("merge.lock_poll", defaults.Merge.LockPoll)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Metrics defaults
	viper.SetDefault("metrics.textfile", defaults.Metrics.Textfile)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration is invalid.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "conductor")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conductor"
	}
	return filepath.Join(home, ".config", "conductor")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
