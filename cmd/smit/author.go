package main

import (
	"os"
	"os/user"

	"github.com/spf13/cobra"
)

var authorFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&authorFlag, "author", "", "author username (default: $SMIT_USER or the OS user)")
}

// resolveAuthor applies the same fallback chain as the teacher's own
// flag-then-environment-then-OS-user pattern for an identity flag with
// no mandatory value.
func resolveAuthor() string {
	if authorFlag != "" {
		return authorFlag
	}
	if env := os.Getenv("SMIT_USER"); env != "" {
		return env
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}
