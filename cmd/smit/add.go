package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/smit-go/smit/internal/entry"
)

var (
	addProject string
	addIssue   string
	addProps   []string
	addSummary string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "add an entry to an issue, or create a new issue",
	Long: `add writes a new entry. With --issue it extends that issue; without
it, a new issue is created. Properties are given as -p name=value
(repeatable); the value is taken verbatim, commas included, and
repeating -p with the same name builds a multi-value property.`,
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, addProject)

		props := entry.Properties{}
		if addSummary != "" {
			props["summary"] = []string{addSummary}
		}
		for _, kv := range addProps {
			name, value, ok := strings.Cut(kv, "=")
			if !ok {
				fatalf("malformed -p %q, want name=value", kv)
			}
			props[name] = append(props[name], value)
		}

		issueID, entryID, err := p.AddEntry(props, addIssue, resolveAuthor(), time.Now())
		if err != nil {
			fatalf("%v", err)
		}
		if entryID == "" {
			fmt.Printf("issue %s: no-op (no changed properties)\n", issueID)
			return
		}
		fmt.Printf("issue %s: entry %s\n", issueID, entryID)
	},
}

func init() {
	addCmd.Flags().StringVar(&addProject, "project", "", "project name")
	addCmd.Flags().StringVar(&addIssue, "issue", "", "existing issue id (omit to create a new issue)")
	addCmd.Flags().StringArrayVarP(&addProps, "prop", "p", nil, "name=value property (repeatable)")
	addCmd.Flags().StringVarP(&addSummary, "summary", "s", "", "shorthand for -p summary=...")
	addCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(addCmd)
}
