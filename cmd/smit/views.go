package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/smit-go/smit/internal/projectconfig"
)

var viewsProject string

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "list, add or remove predefined views (saved searches)",
}

var viewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "list predefined views",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, viewsProject)
		for name, v := range p.GetViews() {
			star := ""
			if v.IsDefault {
				star = " (default)"
			}
			fmt.Printf("%s%s: sort=%q search=%q colspec=%q\n", name, star, v.Sort, v.Search, v.ColSpec)
		}
	},
}

var (
	viewName      string
	viewDefault   bool
	viewFilterIn  []string
	viewFilterOut []string
	viewColSpec   string
	viewSort      string
	viewSearch    string
)

var viewsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "add or replace a named predefined view",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, viewsProject)

		v := projectconfig.PredefinedView{
			Name:      viewName,
			FilterIn:  parseViewFilter(viewFilterIn),
			FilterOut: parseViewFilter(viewFilterOut),
			ColSpec:   viewColSpec,
			Sort:      viewSort,
			Search:    viewSearch,
			IsDefault: viewDefault,
		}
		if err := p.SetPredefinedView(viewName, v); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("view %q saved\n", viewName)
	},
}

var viewsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "delete a predefined view",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, viewsProject)
		if err := p.DeletePredefinedView(args[0]); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("view %q deleted\n", args[0])
	},
}

func parseViewFilter(raw []string) map[string][]string {
	if len(raw) == 0 {
		return nil
	}
	out := map[string][]string{}
	for _, kv := range raw {
		name, values, ok := strings.Cut(kv, "=")
		if !ok {
			fatalf("malformed filter %q, want name=v1,v2", kv)
		}
		out[name] = append(out[name], strings.Split(values, ",")...)
	}
	return out
}

func init() {
	for _, c := range []*cobra.Command{viewsListCmd, viewsSetCmd, viewsDeleteCmd} {
		c.Flags().StringVar(&viewsProject, "project", "", "project name")
		c.MarkFlagRequired("project")
	}
	viewsSetCmd.Flags().StringVar(&viewName, "name", "", "view name")
	viewsSetCmd.Flags().BoolVar(&viewDefault, "default", false, "mark this view as the project's default")
	viewsSetCmd.Flags().StringArrayVar(&viewFilterIn, "in", nil, "name=v1,v2 filterIn clause (repeatable)")
	viewsSetCmd.Flags().StringArrayVar(&viewFilterOut, "out", nil, "name=v1,v2 filterOut clause (repeatable)")
	viewsSetCmd.Flags().StringVar(&viewColSpec, "colspec", "", "ordered column list")
	viewsSetCmd.Flags().StringVar(&viewSort, "sort", "", "sort spec")
	viewsSetCmd.Flags().StringVar(&viewSearch, "search", "", "full-text search clause")
	viewsSetCmd.MarkFlagRequired("name")

	viewsCmd.AddCommand(viewsListCmd, viewsSetCmd, viewsDeleteCmd)
	rootCmd.AddCommand(viewsCmd)
}
