package repoconfig

import (
	"os"
	"testing"
	"time"
)

func TestLoadReturnsDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.MergeStrategy != "keep-local" {
		t.Fatalf("MergeStrategy = %q, want keep-local", s.MergeStrategy)
	}
	if s.DeleteWindow != 0 {
		t.Fatalf("DeleteWindow = %v, want 0", s.DeleteWindow)
	}
}

func TestLoadParsesYamlFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
merge_strategy: drop-local
delete_window: 30m
auto_discover_roots:
  - /repos/a
  - /repos/b
number_issue_across_projects: true
`)
	if err := os.WriteFile(dir+"/repoconfig.yaml", content, 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.MergeStrategy != "drop-local" {
		t.Fatalf("MergeStrategy = %q, want drop-local", s.MergeStrategy)
	}
	if s.DeleteWindow != 30*time.Minute {
		t.Fatalf("DeleteWindow = %v, want 30m", s.DeleteWindow)
	}
	if len(s.AutoDiscoverRoots) != 2 || s.AutoDiscoverRoots[0] != "/repos/a" {
		t.Fatalf("AutoDiscoverRoots = %v", s.AutoDiscoverRoots)
	}
	if !s.NumberIssueAcrossProjects {
		t.Fatal("NumberIssueAcrossProjects should be true")
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/repoconfig.yaml", []byte("merge_strategy: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected an error for malformed yaml")
	}
}

func TestParseMergeStrategy(t *testing.T) {
	cases := map[string]string{
		"":            "keep-local",
		"keep-local":  "keep-local",
		"drop-local":  "drop-local",
		"interactive": "interactive",
	}
	for in, want := range cases {
		got, err := ParseMergeStrategy(in)
		if err != nil {
			t.Fatalf("ParseMergeStrategy(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseMergeStrategy(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseMergeStrategy("bogus"); err == nil {
		t.Fatal("expected an error for an unknown strategy")
	}
}
