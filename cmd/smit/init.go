package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init <project>",
	Short: "create a new project under the repository root",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fatalf("%v", err)
		}
		p, err := db.CreateProject(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("created project %q at %s\n", p.Name(), p.Path())
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
