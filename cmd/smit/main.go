// Command smit is a thin reference CLI over this module's libraries
// (init/add/show/amend/delete/tag/search/config/views/clone/pull/push),
// the way the teacher's cmd/bd is a thin CLI over internal/beads. It is
// an external collaborator per spec.md §1, kept intentionally small:
// all the real logic lives in internal/project, internal/repodb,
// internal/search and internal/syncproto.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "smit",
	Short: "smit - a distributed, content-addressed issue tracker",
	Long:  `smit tracks issues as chains of immutable, self-certifying entries, synced peer to peer over HTTP.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "smit: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
