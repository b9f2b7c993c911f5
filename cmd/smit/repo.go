package main

import (
	"github.com/smit-go/smit/internal/project"
	"github.com/smit-go/smit/internal/repodb"
)

var repoRootFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&repoRootFlag, "repo", ".", "repository root directory")
}

// openDatabase loads every project found under repoRootFlag.
func openDatabase() (*repodb.Database, error) {
	db := repodb.Open(repoRootFlag)
	if err := db.LoadProjects(); err != nil {
		return nil, err
	}
	return db, nil
}

// mustProject looks up projectName in db or exits the process with an
// error message, the way the teacher's FatalErrorRespectJSON short-
// circuits a subcommand that can't proceed.
func mustProject(db *repodb.Database, projectName string) *project.Project {
	p, err := db.LookupProject(projectName)
	if err != nil {
		fatalf("%v", err)
		return nil
	}
	return p
}
