// Package repoconfig loads operational settings for a repository-wide
// database -- a default merge strategy,
// any override of the entry delete window, and the directories
// auto-discovery should scan -- distinct from the wire-format
// ProjectConfig each project carries in its own "project" file
// (spec §6). These are process-local operator knobs, never synced,
// the way the teacher's config.yaml settings in YamlOnlyKeys are
// read at startup rather than stored alongside the synced data
// (SPEC_FULL.md AMBIENT STACK), grounded on
// internal/labelmutex/policy.go's scoped viper.New() pattern.
package repoconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Settings is the parsed shape of a repoconfig.yaml file. Load is not
// called outside this package, so no field below changes the behaviour
// of any other package.
type Settings struct {
	// MergeStrategy names a three-way merge arbitration ("keep-local",
	// "drop-local", or "interactive"). smit pull does not read it; it
	// takes the strategy from its own --strategy flag.
	MergeStrategy string `mapstructure:"merge_strategy"`

	// DeleteWindow is a delete-window override (0 for none). Nothing
	// applies it: project.DeleteEntry always uses project.DeleteWindow.
	DeleteWindow time.Duration `mapstructure:"delete_window"`

	// AutoDiscoverRoots lists extra directories to scan for projects.
	// internal/repodb's LoadProjects does not read it and scans only the
	// repository root.
	AutoDiscoverRoots []string `mapstructure:"auto_discover_roots"`

	// NumberIssueAcrossProjects is a repository-wide default for the
	// flag of the same name. Project creation does not read it; each
	// project's own ProjectConfig alone sets the flag.
	NumberIssueAcrossProjects bool `mapstructure:"number_issue_across_projects"`
}

// defaults mirrors the hardcoded fallbacks the package returns when no
// repoconfig.yaml exists at all, so a repository with no operational
// config still behaves sanely.
func defaults() Settings {
	return Settings{
		MergeStrategy: "keep-local",
		DeleteWindow:  0, // 0 means "use project.DeleteWindow unmodified"
	}
}

// Load reads repoconfig.yaml from dir, falling back to defaults() if
// the file does not exist. A malformed file that does exist is an
// error -- unlike the teacher's tolerant-of-missing-file pattern in
// ParseMutexGroups, a present-but-broken operator config should not be
// silently ignored.
func Load(dir string) (Settings, error) {
	path := dir + "/repoconfig.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaults(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("merge_strategy", "keep-local")
	v.SetDefault("delete_window", 0)
	v.SetDefault("number_issue_across_projects", false)

	if err := v.ReadInConfig(); err != nil {
		return Settings{}, fmt.Errorf("repoconfig: reading %s: %w", path, err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("repoconfig: parsing %s: %w", path, err)
	}
	if s.MergeStrategy == "" {
		s.MergeStrategy = "keep-local"
	}
	return s, nil
}

// ParseMergeStrategy validates a merge strategy name and returns it as
// one of the three recognized literal names ("" becomes "keep-local").
// It does not import internal/syncproto, which would invert the natural
// dependency direction; callers map the result onto syncproto's
// constants themselves.
func ParseMergeStrategy(name string) (string, error) {
	switch name {
	case "keep-local", "drop-local", "interactive":
		return name, nil
	case "":
		return "keep-local", nil
	default:
		return "", fmt.Errorf("repoconfig: unknown merge_strategy %q (want keep-local, drop-local, or interactive)", name)
	}
}
