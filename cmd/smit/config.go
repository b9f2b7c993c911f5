package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/smit-go/smit/internal/project"
)

var configProject string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "show or modify a project's property schema",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "print the project's current property schema",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, configProject)
		cfg := p.GetConfig()
		fmt.Print(string(cfg.Serialize()))
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <verb-line>...",
	Short: `apply addProperty/setPropertyLabel/numberIssues/tag lines, e.g. config set "addProperty status select open closed"`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p := mustProject(db, configProject)

		lines := project.ParseConfigUpdate([]byte(strings.Join(args, "\n")))
		if err := p.ModifyConfig(lines, resolveAuthor()); err != nil {
			fatalf("%v", err)
		}
		fmt.Println("config updated")
	},
}

func init() {
	for _, c := range []*cobra.Command{configShowCmd, configSetCmd} {
		c.Flags().StringVar(&configProject, "project", "", "project name")
		c.MarkFlagRequired("project")
	}
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
