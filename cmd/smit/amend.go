package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	amendProject string
	amendIssue   string
)

var amendCmd = &cobra.Command{
	Use:   "amend <entry-id> <new-message>",
	Short: "rewrite an entry's effective message with an amending entry",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, amendProject)

		entryID, err := p.AmendEntry(amendIssue, args[0], args[1], resolveAuthor(), time.Now())
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("amending entry %s\n", entryID)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <entry-id>",
	Short: "delete the HEAD entry of an issue within the delete window (deprecated, use amend)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, amendProject)

		if err := p.DeleteEntry(amendIssue, args[0], resolveAuthor(), time.Now()); err != nil {
			fatalf("%v", err)
		}
		fmt.Println("deleted")
	},
}

func init() {
	for _, c := range []*cobra.Command{amendCmd, deleteCmd} {
		c.Flags().StringVar(&amendProject, "project", "", "project name")
		c.Flags().StringVar(&amendIssue, "issue", "", "issue id the entry belongs to")
		c.MarkFlagRequired("project")
		c.MarkFlagRequired("issue")
		rootCmd.AddCommand(c)
	}
}
