package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/smit-go/smit/internal/search"
)

var (
	searchProject   string
	searchFullText  string
	searchFilterIn  []string
	searchFilterOut []string
	searchSort      string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "filter, sort and full-text search a project's issues",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, searchProject)

		filterIn := parseFilterFlags(searchFilterIn)
		filterOut := parseFilterFlags(searchFilterOut)

		issues := search.Search(p.AllIssues(), searchFullText, filterIn, filterOut)
		search.Sort(issues, searchSort)

		for _, iss := range issues {
			fmt.Printf("%-8s %-20s %s\n", iss.ID, time.Unix(iss.MTime, 0).Format(time.RFC3339), summaryOf(iss.Properties))
		}
		fmt.Printf("%d issue(s)\n", len(issues))
	},
}

// parseFilterFlags turns repeated "name=v1,v2" flags into a
// search.Filter, matching spec §4.7's filterIn/filterOut shape. No
// flags at all leaves the filter disabled (the CLI has no syntax for
// requesting an explicitly-enabled, zero-clause "matches nothing"
// filter, since that's never a useful thing to ask for interactively).
func parseFilterFlags(raw []string) search.Filter {
	if len(raw) == 0 {
		return search.Filter{}
	}
	clauses := map[string][]string{}
	for _, kv := range raw {
		name, values, ok := strings.Cut(kv, "=")
		if !ok {
			fatalf("malformed filter %q, want name=v1,v2", kv)
		}
		clauses[name] = append(clauses[name], strings.Split(values, ",")...)
	}
	return search.NewFilter(clauses)
}

func summaryOf(props map[string][]string) string {
	if v, ok := props["summary"]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

func init() {
	searchCmd.Flags().StringVar(&searchProject, "project", "", "project name")
	searchCmd.Flags().StringVar(&searchFullText, "text", "", "full-text substring query")
	searchCmd.Flags().StringArrayVar(&searchFilterIn, "in", nil, "name=v1,v2 filterIn clause (repeatable, AND across names)")
	searchCmd.Flags().StringArrayVar(&searchFilterOut, "out", nil, "name=v1,v2 filterOut clause (repeatable)")
	searchCmd.Flags().StringVar(&searchSort, "sort", "mtime", "sort spec, e.g. \"-mtime\" or \"status+summary\"")
	searchCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(searchCmd)
}
