package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var showProject string

var showCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "show an issue's consolidated properties and entry history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, showProject)

		iss, ok := p.Get(args[0])
		if !ok {
			fatalf("no such issue %q", args[0])
		}

		fmt.Printf("issue %s\n", iss.ID)
		fmt.Printf("  ctime: %s\n", time.Unix(iss.CTime, 0).Format(time.RFC3339))
		fmt.Printf("  mtime: %s\n", time.Unix(iss.MTime, 0).Format(time.RFC3339))

		names := make([]string, 0, len(iss.Properties))
		for k := range iss.Properties {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Printf("  %s: %s\n", k, joinValues(iss.Properties[k]))
		}

		fmt.Println("  entries:")
		for _, e := range iss.Entries {
			msg := iss.EffectiveMessage(e.ID)
			tag := ""
			if e.IsAmending() {
				tag = " (amendment)"
			}
			fmt.Printf("    %s  %s  %s%s: %s\n", e.ID, time.Unix(e.CTime, 0).Format(time.RFC3339), e.Author, tag, msg)
			if tags := iss.Tags[e.ID]; len(tags) > 0 {
				names := make([]string, 0, len(tags))
				for t := range tags {
					names = append(names, t)
				}
				sort.Strings(names)
				fmt.Printf("      tags: %s\n", joinValues(names))
			}
		}
	},
}

func joinValues(vs []string) string {
	out := ""
	for i, v := range vs {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

func init() {
	showCmd.Flags().StringVar(&showProject, "project", "", "project name")
	showCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(showCmd)
}
