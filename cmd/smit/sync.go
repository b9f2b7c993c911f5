package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/smit-go/smit/internal/repoconfig"
	"github.com/smit-go/smit/internal/syncproto"
)

var (
	syncUsername string
	syncPassword string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&syncUsername, "username", "", "sync credential username")
	rootCmd.PersistentFlags().StringVar(&syncPassword, "password", "", "sync credential password")
}

// credentialStore returns a DirCredentialStore rooted at .smit under
// the repository root, matching original_source's own dotfile layout
// (clone.cpp's storeSessid/storeUrl under ".smit/").
func credentialStore() syncproto.DirCredentialStore {
	return syncproto.DirCredentialStore{Dir: filepath.Join(repoRootFlag, ".smit")}
}

var cloneCmd = &cobra.Command{
	Use:   "clone <remote-url> <dest-dir>",
	Short: "mirror every readable remote project into a fresh local repository",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		remoteURL, destDir := args[0], args[1]

		c, _, err := syncproto.EstablishSession(ctx, remoteURL, syncUsername, syncPassword, syncproto.DirCredentialStore{Dir: filepath.Join(destDir, ".smit")})
		if err != nil {
			fatalf("%v", err)
		}

		db, err := syncproto.Clone(ctx, c, destDir)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("cloned %d project(s) into %s\n", db.NumProjects(), destDir)
	},
}

var pullStrategy string

var pullCmd = &cobra.Command{
	Use:   "pull <remote-url> <project>",
	Short: "pull a project from a remote, three-way-merging any divergence",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		remoteURL, projectName := args[0], args[1]

		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, projectName)

		c, _, err := syncproto.EstablishSession(ctx, remoteURL, syncUsername, syncPassword, credentialStore())
		if err != nil {
			fatalf("%v", err)
		}

		strategy, err := repoconfig.ParseMergeStrategy(pullStrategy)
		if err != nil {
			fatalf("%v", err)
		}

		if err := syncproto.Pull(ctx, c, p, syncproto.PullOptions{MergeStrategy: parseMergeStrategy(strategy)}); err != nil {
			fatalf("%v", err)
		}
		fmt.Println("pull complete")
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <remote-url> <project>",
	Short: "push a project's unseen entries and files to a remote",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		remoteURL, projectName := args[0], args[1]

		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, projectName)

		c, _, err := syncproto.EstablishSession(ctx, remoteURL, syncUsername, syncPassword, credentialStore())
		if err != nil {
			fatalf("%v", err)
		}

		if err := syncproto.Push(ctx, c, p); err != nil {
			fatalf("%v", err)
		}
		fmt.Println("push complete")
	},
}

// parseMergeStrategy maps repoconfig's literal strategy name onto
// syncproto's ordinal MergeStrategy (repoconfig does not import
// syncproto; see its ParseMergeStrategy doc).
func parseMergeStrategy(name string) syncproto.MergeStrategy {
	switch name {
	case "drop-local":
		return syncproto.MergeDropLocal
	case "interactive":
		return syncproto.MergeInteractive
	default:
		return syncproto.MergeKeepLocal
	}
}

func init() {
	pullCmd.Flags().StringVar(&pullStrategy, "strategy", "keep-local", "merge strategy for conflicting properties: keep-local, drop-local, or interactive")
	rootCmd.AddCommand(cloneCmd, pullCmd, pushCmd)
}
