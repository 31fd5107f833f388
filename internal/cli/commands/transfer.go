// Copyright 2024 The cowfs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"cowfs/internal/engine"
)

var exportCmd = &cobra.Command{
	Use:   "export NAME PATH",
	Short: "Write the current version of a file to PATH",
	Long: `Write the current content of NAME to a regular file at PATH.

Content is copied byte for byte; binary files are safe. An existing PATH is
only replaced with --force.

Examples:
  cowfs export notes.txt ./notes-backup.txt
  cowfs export notes.txt ./notes-backup.txt --force`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import PATH",
	Short: "Import a file or a directory tree",
	Long: `Import PATH into the store.

A regular file becomes one file named --name or its base name. A directory is
walked and every regular file becomes a file named by its path relative to
PATH, prefixed with --name when given. Paths matched by .gitignore files in
the tree are skipped unless --no-gitignore is set. .git directories are
always skipped.

Importing a name that already exists replaces its history with a single
version holding the imported content.

Examples:
  cowfs import ./report.pdf
  cowfs import ./project --name project
  cowfs import ./project --exclude vendor --exclude testdata`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// Flag variables
var (
	// export flags
	exportForce bool

	// import flags
	importName        string
	importNoGitignore bool
	importExcludes    []string
)

func init() {
	exportCmd.Flags().BoolVar(&exportForce, "force", false, "Replace PATH if it exists")
	rootCmd.AddCommand(exportCmd)

	importCmd.Flags().StringVar(&importName, "name", "", "File name, or name prefix for a directory")
	importCmd.Flags().BoolVar(&importNoGitignore, "no-gitignore", false, "Import paths matched by .gitignore")
	importCmd.Flags().StringSliceVar(&importExcludes, "exclude", nil, "Relative path to skip (repeatable)")
	rootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}
	// host paths are resolved against "/"
	target, err := filepath.Abs(args[1])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	n, err := e.Export(args[0], target, exportForce)
	if err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "Exported %s to %s (%s)\n", args[0], target, formatBytes(int64(n)))
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	e, err := eng()
	if err != nil {
		return err
	}
	source, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	imported, err := e.Import(source, engine.ImportOptions{
		Name:      importName,
		Gitignore: !importNoGitignore,
		Excludes:  importExcludes,
	})
	for _, f := range imported {
		fmt.Fprintf(out(cmd), "Imported %s (%s)\n", f.Name, formatBytes(f.Size))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "%d file(s) imported\n", len(imported))
	return nil
}
