package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	tagProject string
	tagIssue   string
)

var tagCmd = &cobra.Command{
	Use:   "tag <entry-id> <tagname>",
	Short: "toggle a tag on an entry",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, tagProject)

		added, err := p.ToggleTag(tagIssue, args[0], args[1])
		if err != nil {
			fatalf("%v", err)
		}
		if added {
			fmt.Printf("tagged %s with %q\n", args[0], args[1])
		} else {
			fmt.Printf("untagged %s of %q\n", args[0], args[1])
		}
	},
}

func init() {
	tagCmd.Flags().StringVar(&tagProject, "project", "", "project name")
	tagCmd.Flags().StringVar(&tagIssue, "issue", "", "issue id the entry belongs to")
	tagCmd.MarkFlagRequired("project")
	tagCmd.MarkFlagRequired("issue")
	rootCmd.AddCommand(tagCmd)
}
